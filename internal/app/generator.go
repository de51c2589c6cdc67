package app

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ==========================================
// ГЕНЕРАТОР ТЕКСТОВ (GIGACHAT)
// ==========================================

const (
	GigaAuthURL = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	GigaChatURL = "https://gigachat.devices.sberbank.ru/api/v1/chat/completions"
	Scope       = "GIGACHAT_API_PERS"
)

type GigaChatRequest struct {
	Model       string    `json:"model"`
	Messages    []GigaMsg `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type GigaMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GigaChatResponse struct {
	Choices []struct {
		Message GigaMsg `json:"message"`
	} `json:"choices"`
}

type GigaTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

type GenManager struct {
	mu           sync.Mutex
	AuthKey      string
	AccessToken  string
	TokenExpires time.Time
	HttpClient   *http.Client
}

func InitGenerator(apiKey string) (*GenManager, error) {
	tr := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
	client := &http.Client{Transport: tr, Timeout: 60 * time.Second}

	gm := &GenManager{
		AuthKey:    apiKey,
		HttpClient: client,
	}

	var initErr error
	if apiKey == "" {
		initErr = fmt.Errorf("GigaChat API ключ не задан")
	} else if err := gm.refreshToken(); err != nil {
		initErr = err
		log.Printf("⚠️ Ошибка авторизации GigaChat при старте (повторим позже): %v", err)
	}
	return gm, initErr
}

func (gm *GenManager) refreshToken() error {
	// Если токен есть и не истек, не обновляем
	if gm.AccessToken != "" && time.Now().Before(gm.TokenExpires) {
		return nil
	}
	if strings.TrimSpace(gm.AuthKey) == "" {
		return fmt.Errorf("GigaChat API ключ не задан")
	}

	payload := url.Values{}
	payload.Set("scope", Scope)

	req, err := http.NewRequest("POST", GigaAuthURL, strings.NewReader(payload.Encode()))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("RqUID", uuid.NewString())
	req.Header.Set("Authorization", "Basic "+gm.AuthKey)

	resp, err := gm.HttpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp GigaTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return err
	}

	gm.AccessToken = tokenResp.AccessToken
	gm.TokenExpires = time.Unix(tokenResp.ExpiresAt/1000, 0).Add(-1 * time.Minute)
	return nil
}

// complete — общий вызов chat/completions с температурой персоны.
func (gm *GenManager) complete(prompt string, temperature float64) (string, error) {
	gm.mu.Lock()
	if err := gm.refreshToken(); err != nil {
		gm.mu.Unlock()
		return "", err
	}
	token := gm.AccessToken
	gm.mu.Unlock()

	reqBody := GigaChatRequest{
		Model:       "GigaChat",
		Messages:    []GigaMsg{{Role: "user", Content: prompt}},
		Temperature: temperature,
	}

	jsonBody, _ := json.Marshal(reqBody)
	req, err := http.NewRequest("POST", GigaChatURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := gm.HttpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var gigaResp GigaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&gigaResp); err != nil {
		return "", err
	}
	if len(gigaResp.Choices) == 0 {
		return "", fmt.Errorf("пустой ответ модели")
	}
	return strings.TrimSpace(gigaResp.Choices[0].Message.Content), nil
}

// GeneratePost пишет пост в голосе персоны, начиная с заданного хука.
func (gm *GenManager) GeneratePost(persona PersonaContext, hook, postType string, product *Product) (string, error) {
	var sb strings.Builder
	sb.WriteString("ТВОЯ РОЛЬ: Ты ведешь Telegram-канал о здоровье, продукции и партнерском бизнесе.\n")
	sb.WriteString(fmt.Sprintf("ГОЛОС: %s. Тон: %s.\n", persona.Name, persona.Tone))
	if len(persona.SpeechPatterns) > 0 {
		sb.WriteString("ХАРАКТЕРНЫЕ ФРАЗЫ: " + strings.Join(persona.SpeechPatterns, " | ") + "\n")
	}
	if len(persona.Emoji) > 0 {
		sb.WriteString("ДОПУСТИМЫЕ ЭМОДЗИ: " + strings.Join(persona.Emoji, " ") + "\n")
	}
	sb.WriteString(fmt.Sprintf("ТИП ПОСТА: %s\n", postType))
	if product != nil {
		sb.WriteString(fmt.Sprintf("ПРОДУКТ: %s (%s). Описание: %s\n",
			product.Name, product.Category, shorten(product.Description, 200)))
	}
	sb.WriteString("\nИНСТРУКЦИЯ:\n")
	sb.WriteString(fmt.Sprintf("1. Начни пост ТОЧНО с этой строки: «%s»\n", hook))
	sb.WriteString("2. Объем 400-900 символов, разговорный русский, без канцелярита.\n")
	sb.WriteString("3. Не обещай гарантированный доход и не дави. Один мягкий призыв в конце.\n")
	sb.WriteString("4. Верни только текст поста, без пояснений.\n")

	return gm.complete(sb.String(), persona.Temperature)
}

// GenerateReply пишет ответ в личном диалоге с учетом стадии воронки.
func (gm *GenManager) GenerateReply(ctx *ConversationContext, text string, persona PersonaContext) (string, error) {
	var sb strings.Builder
	sb.WriteString("ТВОЯ РОЛЬ: Ты консультант по продукции и партнерству, переписываешься в Telegram.\n")
	sb.WriteString(fmt.Sprintf("ГОЛОС: %s. Тон: %s.\n", persona.Name, persona.Tone))
	sb.WriteString(fmt.Sprintf("СТАДИЯ ДИАЛОГА: %s. НАМЕРЕНИЕ: %s. ГОТОВНОСТЬ: %s.\n",
		ctx.Stage, ctx.Intent, ctx.Temperature))
	sb.WriteString(stageInstruction(ctx.Stage) + "\n")
	if n := len(ctx.History); n > 1 {
		from := n - 4
		if from < 0 {
			from = 0
		}
		sb.WriteString("ПОСЛЕДНИЕ СООБЩЕНИЯ СОБЕСЕДНИКА:\n")
		for _, msg := range ctx.History[from : n-1] {
			sb.WriteString("- " + shorten(msg, 150) + "\n")
		}
	}
	sb.WriteString(fmt.Sprintf("НОВОЕ СООБЩЕНИЕ: «%s»\n", shorten(text, 300)))
	sb.WriteString("\nОтветь 1-3 предложениями, по-человечески, без давления. Верни только текст ответа.")

	return gm.complete(sb.String(), 0.7)
}

func stageInstruction(stage FunnelStage) string {
	switch stage {
	case StageGreeting:
		return "ЗАДАЧА: Поздоровайся, установи контакт, задай открытый вопрос о собеседнике."
	case StageDiscovery:
		return "ЗАДАЧА: Выясни потребность и ситуацию собеседника. Не предлагай ничего."
	case StageDeepening:
		return "ЗАДАЧА: Углуби тему: уточни детали боли или цели, покажи понимание."
	case StageSolution:
		return "ЗАДАЧА: Предложи конкретное решение (продукт или партнерство) под запрос собеседника."
	case StageClosing:
		return "ЗАДАЧА: Мягко подведи к действию: заказ или созвон. Сними последние возражения."
	case StageFollowUp:
		return "ЗАДАЧА: Поддержи контакт, поинтересуйся результатом, без продажи."
	}
	return "ЗАДАЧА: Поддержи разговор."
}

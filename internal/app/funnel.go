package app

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

// ==========================================
// ВОРОНКА ДИАЛОГА (стадия / намерение / температура)
// ==========================================

type FunnelStage string

const (
	StageGreeting  FunnelStage = "GREETING"
	StageDiscovery FunnelStage = "DISCOVERY"
	StageDeepening FunnelStage = "DEEPENING"
	StageSolution  FunnelStage = "SOLUTION"
	StageClosing   FunnelStage = "CLOSING"
	StageFollowUp  FunnelStage = "FOLLOW_UP"
)

// Линейный порядок стадий. FOLLOW_UP — терминальная, зацикливается на себе.
var stageOrder = []FunnelStage{
	StageGreeting, StageDiscovery, StageDeepening,
	StageSolution, StageClosing, StageFollowUp,
}

type Intent string

const (
	IntentProduct  Intent = "PRODUCT"
	IntentBusiness Intent = "BUSINESS"
	IntentSkeptic  Intent = "SKEPTIC"
	IntentCurious  Intent = "CURIOUS"
	IntentGoal     Intent = "GOAL_SETTING"
)

type LeadTemperature string

const (
	TempHot  LeadTemperature = "HOT"
	TempWarm LeadTemperature = "WARM"
	TempCold LeadTemperature = "COLD"
)

// ConversationContext — состояние диалога одного пользователя.
// История ограничена historyCap последних сообщений.
type ConversationContext struct {
	UserID        int64
	Stage         FunnelStage
	Intent        Intent
	Temperature   LeadTemperature
	MessagesCount int
	History       []string
	UpdatedAt     time.Time
}

type FunnelResult struct {
	Stage         FunnelStage
	Intent        Intent
	Temperature   LeadTemperature
	MessagesCount int
}

// ==========================================
// ЛЕКСИКОН
// ==========================================

// Lexicon — подменяемый словарь сигналов. Алгоритм классификации один:
// первый совпавший набор в порядке приоритета, иначе значение по умолчанию.
type Lexicon struct {
	Product  []string `json:"product"`
	Business []string `json:"business"`
	Skeptic  []string `json:"skeptic"`
	Goal     []string `json:"goal"`
	Hot      []string `json:"hot"`
	Doubt    []string `json:"doubt"`
}

var defaultLexicon = Lexicon{
	Product: []string{
		"коллаген", "витамины", "бад", "состав", "омега",
		"протеин", "детокс", "крем", "сыворотка", "каталог",
		"похудеть", "похудение",
	},
	Business: []string{
		"бизнес", "партнерство", "команда", "доход", "заработок",
		"наставник", "регистрация", "маркетинг-план", "структура",
	},
	Skeptic: []string{
		"обман", "развод", "пирамида", "секта", "навязывают",
		"впаривают", "лохотрон",
	},
	Goal: []string{
		"здоровье", "энергия", "цель", "мечта",
		"измениться", "наладить", "улучшить",
	},
	Hot: []string{
		"хочу купить", "как заказать", "где заказать", "куда платить",
		"хочу начать", "как начать", "готова начать", "оформи заказ",
		"сколько стоит",
	},
	Doubt: []string{
		"не верю", "не уверена", "не уверен", "не знаю",
		"сомневаюсь", "подозрительно",
	},
}

// Разбиение текста на слова: все, кроме букв и цифр, считаем разделителем.
var wordSplitRegex = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// ==========================================
// МЕНЕДЖЕР ВОРОНКИ
// ==========================================

type ConversationalFunnel struct {
	mu         sync.RWMutex
	contexts   map[int64]*ConversationContext
	lexicon    Lexicon
	historyCap int
}

func NewConversationalFunnel() *ConversationalFunnel {
	return &ConversationalFunnel{
		contexts:   make(map[int64]*ConversationContext),
		lexicon:    defaultLexicon,
		historyCap: 50,
	}
}

// LoadLexicon подменяет встроенный словарь файлом (если он есть).
func (cf *ConversationalFunnel) LoadLexicon(path string) error {
	var lex Lexicon
	if err := loadJSON(path, &lex); err != nil {
		return err
	}
	cf.mu.Lock()
	defer cf.mu.Unlock()
	if len(lex.Product) > 0 {
		cf.lexicon.Product = lex.Product
	}
	if len(lex.Business) > 0 {
		cf.lexicon.Business = lex.Business
	}
	if len(lex.Skeptic) > 0 {
		cf.lexicon.Skeptic = lex.Skeptic
	}
	if len(lex.Goal) > 0 {
		cf.lexicon.Goal = lex.Goal
	}
	if len(lex.Hot) > 0 {
		cf.lexicon.Hot = lex.Hot
	}
	if len(lex.Doubt) > 0 {
		cf.lexicon.Doubt = lex.Doubt
	}
	return nil
}

// ExtendProductLexicon добавляет названия продуктов из каталога
// к сигналам намерения PRODUCT.
func (cf *ConversationalFunnel) ExtendProductLexicon(names []string) {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	seen := make(map[string]bool, len(cf.lexicon.Product))
	for _, p := range cf.lexicon.Product {
		seen[p] = true
	}
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" || seen[n] {
			continue
		}
		cf.lexicon.Product = append(cf.lexicon.Product, n)
		seen[n] = true
	}
}

// ProcessMessage прогоняет входящее сообщение через классификатор и
// машину стадий. Намерение и температура пересчитываются каждый раз,
// стадия двигается только вперед.
func (cf *ConversationalFunnel) ProcessMessage(userID int64, text string) FunnelResult {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	ctx, ok := cf.contexts[userID]
	if !ok {
		ctx = &ConversationContext{
			UserID:      userID,
			Stage:       StageGreeting,
			Intent:      IntentCurious,
			Temperature: TempWarm,
		}
		cf.contexts[userID] = ctx
	}

	ctx.MessagesCount++
	ctx.History = append(ctx.History, text)
	if len(ctx.History) > cf.historyCap {
		ctx.History = ctx.History[len(ctx.History)-cf.historyCap:]
	}

	lower := strings.ToLower(text)
	words := wordSplitRegex.ReplaceAllString(lower, " ")

	ctx.Intent = cf.classifyIntentLocked(lower, words)
	ctx.Temperature = cf.classifyTemperatureLocked(lower, words, ctx.Intent)

	// Правила перехода (в этом порядке):
	// 1) каждое третье сообщение двигает стадию на шаг вперед;
	// 2) иначе горячий лид перепрыгивает сразу в SOLUTION;
	// 3) иначе стадия не меняется.
	switch {
	case ctx.MessagesCount%3 == 0:
		ctx.Stage = nextStage(ctx.Stage)
	case ctx.Temperature == TempHot && ctx.Stage != StageClosing && ctx.Stage != StageFollowUp:
		ctx.Stage = StageSolution
	}
	ctx.UpdatedAt = time.Now()

	return FunnelResult{
		Stage:         ctx.Stage,
		Intent:        ctx.Intent,
		Temperature:   ctx.Temperature,
		MessagesCount: ctx.MessagesCount,
	}
}

// GetContext возвращает копию контекста пользователя или nil.
func (cf *ConversationalFunnel) GetContext(userID int64) *ConversationContext {
	cf.mu.RLock()
	defer cf.mu.RUnlock()
	ctx, ok := cf.contexts[userID]
	if !ok {
		return nil
	}
	cp := *ctx
	cp.History = append([]string(nil), ctx.History...)
	return &cp
}

// PruneStale удаляет диалоги без активности дольше maxAge.
func (cf *ConversationalFunnel) PruneStale(maxAge time.Duration) int {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, ctx := range cf.contexts {
		if !ctx.UpdatedAt.IsZero() && ctx.UpdatedAt.Before(cutoff) {
			delete(cf.contexts, id)
			removed++
		}
	}
	return removed
}

func (cf *ConversationalFunnel) ContextCount() int {
	cf.mu.RLock()
	defer cf.mu.RUnlock()
	return len(cf.contexts)
}

// classifyIntentLocked — первый совпавший набор побеждает.
// Порядок приоритета: продукт -> бизнес -> скепсис -> цели -> любопытство.
func (cf *ConversationalFunnel) classifyIntentLocked(lower, words string) Intent {
	switch {
	case matchesAny(lower, words, cf.lexicon.Product):
		return IntentProduct
	case matchesAny(lower, words, cf.lexicon.Business):
		return IntentBusiness
	case matchesAny(lower, words, cf.lexicon.Skeptic):
		return IntentSkeptic
	case matchesAny(lower, words, cf.lexicon.Goal):
		return IntentGoal
	default:
		return IntentCurious
	}
}

// classifyTemperatureLocked: HOT проверяется первым и имеет приоритет,
// сообщение не может быть одновременно HOT и COLD.
func (cf *ConversationalFunnel) classifyTemperatureLocked(lower, words string, intent Intent) LeadTemperature {
	if matchesAny(lower, words, cf.lexicon.Hot) {
		return TempHot
	}
	if intent == IntentSkeptic || matchesAny(lower, words, cf.lexicon.Doubt) {
		return TempCold
	}
	return TempWarm
}

// matchesAny: фразы (с пробелом) ищем как подстроку, одиночные слова —
// только как целое слово, чтобы "блог" не срабатывал на "блогер".
func matchesAny(lower, words string, keywords []string) bool {
	padded := " " + words + " "
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(kw, " ") {
			if strings.Contains(lower, kw) {
				return true
			}
			continue
		}
		if strings.Contains(padded, " "+kw+" ") {
			return true
		}
	}
	return false
}

func nextStage(s FunnelStage) FunnelStage {
	for i, st := range stageOrder {
		if st == s {
			if i == len(stageOrder)-1 {
				return s
			}
			return stageOrder[i+1]
		}
	}
	return s
}

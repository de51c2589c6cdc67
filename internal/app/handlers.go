package app

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"
)

// ==========================================
// МЕНЮ И СОСТОЯНИЯ
// ==========================================

var (
	adminMenu         = &tele.ReplyMarkup{}
	btnToggleSchedule = adminMenu.Data("🔄 Автопостинг Вкл/Выкл", "admin_toggle_schedule")
	btnSetTime        = adminMenu.Data("⏰ Время публикации", "admin_set_time")
	btnPostNow        = adminMenu.Data("🚀 Опубликовать сейчас", "admin_post_now")
	btnArms           = adminMenu.Data("🎰 Руки бандита", "admin_arms")
	btnReport         = adminMenu.Data("📊 Отчет", "admin_report")
	btnBackupDB       = adminMenu.Data("💾 Бэкап БД", "admin_backup")

	// СОСТОЯНИЯ АДМИНА
	adminStates   = make(map[int64]string)
	adminStatesMu sync.Mutex

	// --- ANTI-SPAM VARIABLES ---
	userLastReq   = make(map[int64]time.Time)
	userLastReqMu sync.Mutex

	// Кулдаун генерации ответов: не дергаем LLM чаще, чем раз в 20 секунд на пользователя
	replyCooldown   = make(map[int64]time.Time)
	replyCooldownMu sync.Mutex
)

// КОНСТАНТЫ СОСТОЯНИЙ
const (
	STATE_IDLE         = ""
	STATE_WAITING_TIME = "waiting_publish_time"
)

func setAdminState(userID int64, state string) {
	adminStatesMu.Lock()
	adminStates[userID] = state
	adminStatesMu.Unlock()
}

func getAdminState(userID int64) string {
	adminStatesMu.Lock()
	defer adminStatesMu.Unlock()
	return adminStates[userID]
}

// ==========================================
// ИНИЦИАЛИЗАЦИЯ
// ==========================================

func InitMenus() {
	adminMenu.Inline(
		adminMenu.Row(btnToggleSchedule, btnSetTime),
		adminMenu.Row(btnPostNow, btnArms),
		adminMenu.Row(btnReport, btnBackupDB),
	)
}

func RegisterHandlers(b *tele.Bot) {
	b.Handle("/start", func(c tele.Context) error {
		if c.Chat().Type != tele.ChatPrivate {
			return nil
		}
		if isAdmin(c.Sender().ID) {
			return c.Send("⚙️ <b>Панель управления PLAMYA</b>", adminMenu, tele.ModeHTML)
		}
		return c.Send("Привет! Рада знакомству 💛 Расскажи, что тебя интересует: продукция, здоровье или возможность дохода?")
	})

	b.Handle("/admin", func(c tele.Context) error {
		if !isAdmin(c.Sender().ID) {
			return nil
		}
		return c.Send("⚙️ <b>Панель управления PLAMYA</b>", adminMenu, tele.ModeHTML)
	})

	b.Handle("/status", func(c tele.Context) error {
		if !isAdmin(c.Sender().ID) {
			return nil
		}
		return c.Send(buildStatusText(), tele.ModeHTML)
	})

	b.Handle("/arms", func(c tele.Context) error {
		if !isAdmin(c.Sender().ID) {
			return nil
		}
		return c.Send(buildArmsText(), tele.ModeHTML)
	})

	b.Handle(&btnToggleSchedule, func(c tele.Context) error {
		if !isAdmin(c.Sender().ID) {
			return nil
		}
		s, err := store.GetSettings()
		if err != nil {
			return c.Respond(&tele.CallbackResponse{Text: "Ошибка чтения настроек"})
		}
		s.IsActive = !s.IsActive
		if err := store.UpdateSettings(s); err != nil {
			return c.Respond(&tele.CallbackResponse{Text: "Ошибка сохранения"})
		}
		status := "выключен"
		if s.IsActive {
			status = fmt.Sprintf("включен, время %s", s.PublishTime)
		}
		return c.Send(fmt.Sprintf("🔄 Автопостинг %s.", status))
	})

	b.Handle(&btnSetTime, func(c tele.Context) error {
		if !isAdmin(c.Sender().ID) {
			return nil
		}
		setAdminState(c.Sender().ID, STATE_WAITING_TIME)
		return c.Send("Введите время публикации в формате ЧЧ:ММ (например 10:00):")
	})

	b.Handle(&btnPostNow, func(c tele.Context) error {
		if !isAdmin(c.Sender().ID) {
			return nil
		}
		_ = c.Send("🚀 Запускаю конвейер публикации...")
		runHeavy("manual-post", func() {
			if err := PublishSmartPost(b, store, config.TargetChatID); err != nil {
				_, _ = b.Send(c.Sender(), fmt.Sprintf("❌ Публикация не удалась: %v", err))
				return
			}
			_, _ = b.Send(c.Sender(), "✅ Пост опубликован.")
		})
		return nil
	})

	b.Handle(&btnArms, func(c tele.Context) error {
		if !isAdmin(c.Sender().ID) {
			return nil
		}
		return c.Send(buildArmsText(), tele.ModeHTML)
	})

	b.Handle(&btnReport, func(c tele.Context) error {
		if !isAdmin(c.Sender().ID) {
			return nil
		}
		if err := c.Send(buildWeeklyReport(store), tele.ModeHTML); err != nil {
			return err
		}
		img, err := engagement.GenerateTrendImage()
		if err != nil {
			log.Printf("⚠️ График не построен: %v", err)
			return nil
		}
		photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(img))}
		return c.Send(photo)
	})

	b.Handle(&btnBackupDB, func(c tele.Context) error {
		if !isAdmin(c.Sender().ID) {
			return nil
		}
		runHeavy("manual-backup", func() { PerformBackup(b, store) })
		return c.Respond(&tele.CallbackResponse{Text: "Бэкап запущен"})
	})

	b.Handle(tele.OnText, HandleText)
	b.Handle(tele.OnMessageReaction, func(c tele.Context) error {
		engagement.TrackReaction(c)
		return nil
	})
	b.Handle(tele.OnSticker, func(c tele.Context) error { return nil })

	// ВАЖНО: Middleware подключаем после всех хендлеров
	b.Use(RecoverMiddleware())
	b.Use(Middleware())
}

// ==========================================
// ТЕКСТОВЫЕ СООБЩЕНИЯ
// ==========================================

func HandleText(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}

	// Группа обсуждения: только учет активности, без ответов
	if chat.Type == tele.ChatGroup || chat.Type == tele.ChatSuperGroup {
		engagement.TrackMessage(c)
		return nil
	}
	if chat.Type != tele.ChatPrivate {
		return nil
	}

	userID := c.Sender().ID

	// Машина состояний админа
	if isAdmin(userID) && getAdminState(userID) == STATE_WAITING_TIME {
		setAdminState(userID, STATE_IDLE)
		input := strings.TrimSpace(c.Text())
		if _, err := time.Parse("15:04", input); err != nil {
			return c.Send("⚠️ Неверный формат. Нужно ЧЧ:ММ, например 10:00.")
		}
		s, err := store.GetSettings()
		if err != nil {
			return c.Send("❌ Ошибка чтения настроек.")
		}
		s.PublishTime = input
		if err := store.UpdateSettings(s); err != nil {
			return c.Send("❌ Не удалось сохранить время.")
		}
		return c.Send(fmt.Sprintf("✅ Время публикации: %s.", input))
	}

	return handleDialog(c)
}

// handleDialog прогоняет сообщение через воронку и отвечает голосом персоны.
func handleDialog(c tele.Context) error {
	userID := c.Sender().ID
	text := c.Text()

	res := funnel.ProcessMessage(userID, text)
	log.Printf("💬 Диалог %d: стадия %s, намерение %s, температура %s (сообщение #%d).",
		userID, res.Stage, res.Intent, res.Temperature, res.MessagesCount)

	if archive != nil {
		snap := DialogRecord{
			UserID:        userID,
			Stage:         string(res.Stage),
			Intent:        string(res.Intent),
			Temperature:   string(res.Temperature),
			MessagesCount: res.MessagesCount,
			Text:          shorten(text, 500),
		}
		safeGo("dialog-archive", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := archive.AppendSnapshot(ctx, snap); err != nil {
				log.Printf("⚠️ Снимок диалога не записан: %v", err)
			}
		})
	}

	if !replyAllowed(userID) {
		return nil
	}

	_ = c.Notify(tele.Typing)
	persona := personas.Profile(dialogPersona(res))
	dialogCtx := funnel.GetContext(userID)

	reply, err := genManager.GenerateReply(dialogCtx, text, persona)
	if err != nil {
		log.Printf("⚠️ Ответ не сгенерирован для %d: %v", userID, err)
		return c.Send("Я чуть позже вернусь с ответом, хорошо? 💛")
	}
	return c.Send(reply)
}

// dialogPersona подбирает голос ответа под намерение собеседника.
func dialogPersona(res FunnelResult) PersonaVersion {
	switch res.Intent {
	case IntentProduct:
		return PersonaExpert
	case IntentBusiness:
		return PersonaRawHonest
	case IntentSkeptic:
		return PersonaRawHonest
	case IntentGoal:
		return PersonaPhilosopher
	default:
		return PersonaFriend
	}
}

func replyAllowed(userID int64) bool {
	replyCooldownMu.Lock()
	defer replyCooldownMu.Unlock()
	last, ok := replyCooldown[userID]
	if ok && time.Since(last) < 20*time.Second {
		return false
	}
	replyCooldown[userID] = time.Now()
	return true
}

// ==========================================
// АДМИН-СВОДКИ
// ==========================================

func buildStatusText() string {
	gor, alloc, _, sys := runtimeStats()
	total, scored := store.CountPosts()

	var sb strings.Builder
	sb.WriteString("🩺 <b>Состояние PLAMYA</b>\n\n")
	sb.WriteString(fmt.Sprintf("⏱ Uptime: %s\n", formatDuration(time.Since(appStartedAt))))
	sb.WriteString(fmt.Sprintf("🧵 Goroutines: %d\n", gor))
	sb.WriteString(fmt.Sprintf("💾 Память: %s (sys %s)\n\n", formatBytes(alloc), formatBytes(sys)))
	sb.WriteString(fmt.Sprintf("📬 Постов: %d (с исходом %d)\n", total, scored))
	sb.WriteString(fmt.Sprintf("🎰 Исходов у бандита: %d\n", analyzer.TotalOutcomes()))
	sb.WriteString(fmt.Sprintf("💬 Диалогов в воронке: %d\n", funnel.ContextCount()))
	sb.WriteString(fmt.Sprintf("📦 Продукции в каталоге: %d\n", products.Count()))
	return sb.String()
}

func buildArmsText() string {
	arms := analyzer.SnapshotArms()
	if len(arms) == 0 {
		return "🎰 Статистики пока нет: бандит в холодном старте."
	}
	var sb strings.Builder
	sb.WriteString("🎰 <b>Руки бандита</b>\n\n")
	for _, a := range arms {
		sb.WriteString(fmt.Sprintf("• <code>%s</code>: %d исп., EMA %.3f, сумма %.2f\n",
			a.Key, a.Pulls, a.RewardEMA, a.RewardSum))
	}
	return sb.String()
}

// ==========================================
// MIDDLEWARE
// ==========================================

func Middleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return next(c)
			}
			if isAdmin(sender.ID) {
				return next(c)
			}

			// Rate Limit
			userLastReqMu.Lock()
			last, exists := userLastReq[sender.ID]
			if exists && time.Since(last) < 1*time.Second {
				userLastReqMu.Unlock()
				return nil
			}
			userLastReq[sender.ID] = time.Now()
			userLastReqMu.Unlock()

			return next(c)
		}
	}
}

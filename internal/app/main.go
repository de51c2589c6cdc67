package app

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tele "gopkg.in/telebot.v4"
)

// ==========================================
// КОНФИГУРАЦИЯ
// ==========================================

type Config struct {
	Token        string  `json:"token"`
	GigaChatKey  string  `json:"gigachat_key"`
	TargetChatID int64   `json:"target_chat_id"`
	BotAPIUrl    string  `json:"bot_api_url"`
	Segment      string  `json:"segment"`        // Сегмент аудитории канала (например "mass" или "vip")
	AudienceSize int     `json:"audience_size"`  // Примерный размер аудитории для расчета вовлеченности
	MongoURI     string  `json:"mongo_uri"`      // Если задан — архив диалогов пишется в MongoDB
	ScoreGate    float64 `json:"score_gate"`     // Порог допуска черновика к публикации
	MinOutcomes  int     `json:"min_outcomes"`   // Сколько исходов нужно бандиту до выхода из холодного старта
	AdminIDs     []int64 `json:"admin_ids"`      // Получатели отчетов, бэкапов и админ-команд
}

func isAdmin(userID int64) bool {
	for _, id := range config.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ==========================================
// ГЛОБАЛЬНЫЕ ПЕРЕМЕННЫЕ (Общие для всех файлов)
// ==========================================

var (
	config     Config
	store      *Store
	analyzer   *PerformanceAnalyzer
	personas   *PersonaManager
	hooks      *HookSelector
	funnel     *ConversationalFunnel
	genManager *GenManager
	engagement *EngagementTracker
	archive    DialogArchive
	products   *ProductCatalog
)

// ==========================================
// MAIN
// ==========================================

func Run() {
	initAppLayout()
	InitLogger()
	defer CloseLogger()
	markStart()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	// 1. Загрузка конфигурации
	if err := loadJSON(configFilePath, &config); err != nil {
		log.Fatalf("❌ Критическая ошибка: не найден или поврежден %s: %v", configFilePath, err)
	}
	applyEnvOverrides(&config)
	if config.Segment == "" {
		config.Segment = "mass"
	}
	if config.AudienceSize <= 0 {
		config.AudienceSize = 500
	}

	// 2. Инициализация хранилища (SQLite)
	store = NewStore(dbFilePath)
	log.Println("✅ База данных (SQLite) подключена.")

	// 3. Каталог продукции (нужен лексикону воронки)
	products = NewProductCatalog(store)
	log.Printf("✅ Каталог продукции: %d позиций.", products.Count())

	// 4. Ядро принятия решений
	analyzer = NewPerformanceAnalyzer(AnalyzerConfig{
		Segment:         config.Segment,
		MinObservations: config.MinOutcomes,
		ScoreGate:       config.ScoreGate,
	}, rng)
	if arms, err := store.LoadArms(); err != nil {
		log.Printf("⚠️ Не удалось загрузить статистику рук бандита: %v", err)
	} else {
		analyzer.RestoreArms(arms)
		log.Printf("✅ Бандит восстановлен: %d рук, %d исходов.", len(arms), analyzer.TotalOutcomes())
	}

	personas = NewPersonaManager(rng)
	hooks = NewHookSelector(rng, 10)
	if n, err := hooks.LoadFile(hooksFilePath); err == nil {
		log.Printf("✅ Хуки загружены из файла: %d шаблонов.", n)
	} else if !os.IsNotExist(err) {
		log.Printf("⚠️ Файл хуков поврежден, работаем на встроенных: %v", err)
	}

	funnel = NewConversationalFunnel()
	if err := funnel.LoadLexicon(lexiconFilePath); err == nil {
		log.Println("✅ Лексикон воронки загружен из файла.")
	} else if !os.IsNotExist(err) {
		log.Printf("⚠️ Файл лексикона поврежден, работаем на встроенном: %v", err)
	}
	funnel.ExtendProductLexicon(products.Keywords())

	// 5. Архив диалогов (SQLite или MongoDB)
	var err error
	archive, err = NewDialogArchive(store, config.MongoURI)
	if err != nil {
		log.Printf("⚠️ Архив диалогов недоступен: %v. Работаем без архива.", err)
	}

	// 6. Генератор текстов (GigaChat)
	genManager, err = InitGenerator(config.GigaChatKey)
	if err != nil {
		log.Printf("⚠️ Ошибка подключения GigaChat: %v. Автопостинг может быть ограничен.", err)
	} else {
		log.Println("✅ GigaChat успешно подключен.")
	}

	// 7. Трекер вовлеченности
	engagement = NewEngagementTracker(engagementFilePath)
	log.Printf("✅ Вовлеченность загружена. Сообщений: %d, Постов: %d",
		engagement.Data.TotalMessages, len(engagement.Data.Posts))

	// 8. Настройки бота
	log.Println("🔄 Попытка подключения к Telegram API...")

	pref := tele.Settings{
		Token: config.Token,
		URL:   config.BotAPIUrl,
		Poller: &tele.LongPoller{
			Timeout: 10 * time.Second,
		},
		OnError: func(err error, c tele.Context) {
			log.Printf("❌ Ошибка в Bot Poller: %v", err)
			if c != nil && c.Chat() != nil {
				log.Printf("   -> В чате: %v", c.Chat().ID)
			}
		},
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("❌ КРИТИЧЕСКАЯ ОШИБКА при создании бота (проверьте токен или доступ к API): %v", err)
	}

	// 9. Меню и хендлеры
	InitMenus()
	RegisterHandlers(b)

	// 10. Умный планировщик: выбор руки -> персона -> генерация -> оценка -> публикация,
	// плюс сбор исходов вовлеченности через 24-48 часов.
	safeGo("scheduler", func() { StartScheduler(b, store, config.TargetChatID) })
	safeGo("housekeeping", startHousekeeping)
	if addr := os.Getenv("PLAMYA_HEALTH_ADDR"); addr != "" {
		safeGo("health-server", func() { startHealthServer(addr) })
	}

	log.Printf("✅ Соединение установлено! Бот: @%s (ID: %d)", b.Me.Username, b.Me.ID)
	if config.BotAPIUrl != "" {
		log.Printf("🌐 Работа через прокси: %s", config.BotAPIUrl)
	} else {
		log.Println("🌐 Работа через стандартный api.telegram.org")
	}

	// Сброс вебхука и зависших сообщений (важно при смене сервера/прокси)
	log.Println("🧹 Сброс вебхука и удаление старых зависших сообщений...")
	if err := b.RemoveWebhook(true); err != nil {
		log.Printf("⚠️ Предупреждение: Не удалось сбросить вебхук: %v", err)
	} else {
		log.Println("✅ Вебхук удален, очередь очищена. Бот готов к работе.")
	}

	fmt.Printf("🚀 Бот запущен. Target: %d. Сегмент: %s\n", config.TargetChatID, config.Segment)

	safeGo("bot", func() { b.Start() })

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("⏹ Завершение работы...")
	b.Stop()
	engagement.Save()
	if err := store.SaveArms(analyzer.SnapshotArms()); err != nil {
		log.Printf("⚠️ Не удалось сохранить статистику бандита: %v", err)
	}
	if err := store.CloseDB(); err != nil {
		log.Printf("⚠️ Ошибка закрытия БД: %v", err)
	}
}

func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	if v := os.Getenv("PLAMYA_BOT_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("PLAMYA_GIGACHAT_KEY"); v != "" {
		cfg.GigaChatKey = v
	}
	if v := os.Getenv("PLAMYA_BOT_API_URL"); v != "" {
		cfg.BotAPIUrl = v
	}
	if v := os.Getenv("PLAMYA_MONGO_URI"); v != "" {
		cfg.MongoURI = v
	}
	if v := os.Getenv("PLAMYA_TARGET_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.TargetChatID = id
		}
	}
	if v := os.Getenv("PLAMYA_SEGMENT"); v != "" {
		cfg.Segment = v
	}
}

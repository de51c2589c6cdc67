package app

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v4"
)

// StartScheduler запускает фоновый процесс проверки времени
func StartScheduler(bot *tele.Bot, st *Store, chatID int64) {
	log.Println("⏰ Планировщик запущен")

	// Тикер срабатывает каждую минуту
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		// 1. Ежедневная автопубликация
		checkAndPublish(bot, st, chatID)

		// 2. Сбор исходов по постам, которым 24-48 часов
		checkAndCollectOutcomes(st)

		// 3. Еженедельный бэкап БД
		checkAndBackup(bot, st)

		// 4. Еженедельный отчет с графиком
		checkAndSendReport(bot, st)
	}
}

func checkAndPublish(bot *tele.Bot, st *Store, chatID int64) {
	settings, err := st.GetSettings()
	if err != nil {
		log.Println("❌ Ошибка чтения настроек планировщика:", err)
		return
	}
	if !settings.IsActive {
		return
	}

	now := time.Now()
	// Если год и день совпадают с последним запуском — выходим
	if settings.LastRun.Year() == now.Year() && settings.LastRun.YearDay() == now.YearDay() {
		return
	}

	targetTime, err := time.Parse("15:04", settings.PublishTime)
	if err != nil {
		log.Println("⚠️ Неверный формат времени в БД:", settings.PublishTime)
		return
	}
	if now.Hour() != targetTime.Hour() || now.Minute() != targetTime.Minute() {
		return
	}

	log.Printf("🔔 Время пришло! (%s). Запускаем конвейер публикации...", settings.PublishTime)
	if err := PublishSmartPost(bot, st, chatID); err != nil {
		log.Println("❌ Автопубликация не удалась:", err)
		return
	}

	settings.LastRun = now
	if err := st.UpdateSettings(settings); err != nil {
		log.Printf("⚠️ Не удалось обновить LastRun: %v", err)
	}
	log.Println("✅ Автопубликация выполнена успешно.")
}

// PublishSmartPost — полный конвейер: рука бандита -> персона -> хук ->
// генерация -> оценка черновика -> отправка -> регистрация поста.
// Вызывается планировщиком и командой /post_now.
func PublishSmartPost(bot *tele.Bot, st *Store, chatID int64) error {
	now := time.Now()
	feat := ContextFeatures{
		Segment:   config.Segment,
		Hour:      now.Hour(),
		Weekday:   now.Weekday(),
		TypeRates: st.RollingTypeRates(30 * 24 * time.Hour),
	}

	key := analyzer.SelectNextArm(feat)
	persona := personas.Select(key.PostType)
	log.Printf("🎰 Рука: %s. Персона: %s (%s).", key, persona.Name, persona.Mood)

	hook := hooks.Select(persona.Version, persona.Mood, key.PostType, true)
	var product *Product
	if key.PostType == "product_showcase" || key.PostType == "expertise" {
		product = products.Random()
	}
	hook = FillVariables(hook, hookVariables(product))

	text, err := genManager.GeneratePost(persona, hook, key.PostType, product)
	if err != nil {
		return fmt.Errorf("генерация: %w", err)
	}

	score, ok := analyzer.ScoreDraft(text, key)
	log.Printf("📝 Черновик готов: %d симв., оценка %.2f.", len([]rune(text)), score)
	if !ok {
		return fmt.Errorf("черновик не прошел порог качества (%.2f)", score)
	}

	channel := &tele.Chat{ID: chatID}
	var sent *tele.Message
	err = sendWithRetry(3, 500*time.Millisecond, func() error {
		var e error
		sent, e = bot.Send(channel, text)
		return e
	})
	if err != nil {
		return fmt.Errorf("отправка: %w", err)
	}

	post := &PublishedPost{
		ID:          uuid.NewString(),
		PostType:    key.PostType,
		Segment:     key.Segment,
		HourBucket:  key.HourBucket,
		Persona:     string(persona.Version),
		Hook:        hook,
		Text:        text,
		Score:       score,
		MessageID:   int64(sent.ID),
		PublishedAt: now,
	}
	if err := st.CreatePost(post); err != nil {
		log.Printf("⚠️ Пост отправлен, но не записан в БД: %v", err)
	}
	engagement.RegisterPublished(int64(sent.ID), post.ID, text)
	return nil
}

// hookVariables — значения плейсхолдеров для шаблонов хуков.
func hookVariables(product *Product) map[string]string {
	vars := map[string]string{
		"period": "три года",
		"slots":  "5",
		"month":  russianMonth(time.Now().Month()),
	}
	if product != nil {
		vars["product"] = product.Name
	} else {
		vars["product"] = "нашей продукцией"
	}
	return vars
}

var russianMonths = [...]string{
	"январе", "феврале", "марте", "апреле", "мае", "июне",
	"июле", "августе", "сентябре", "октябре", "ноябре", "декабре",
}

func russianMonth(m time.Month) string {
	return russianMonths[int(m)-1]
}

// checkAndCollectOutcomes замеряет вовлеченность постов возрастом 24-48 часов
// и скармливает ее бандиту. Запускается в начале каждого часа.
func checkAndCollectOutcomes(st *Store) {
	now := time.Now()
	if now.Minute() != 0 {
		return
	}

	posts := st.PostsAwaitingOutcome(now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	for _, p := range posts {
		rate := engagement.EngagementRate(p.MessageID, config.AudienceSize)
		key := ArmKey{PostType: p.PostType, Segment: p.Segment, HourBucket: p.HourBucket}

		if err := analyzer.RecordOutcome(p.ID, key, rate); err != nil {
			log.Printf("⚠️ Исход поста %s отвергнут: %v", p.ID, err)
			continue
		}
		if err := st.MarkOutcome(p.ID, rate); err != nil {
			log.Printf("⚠️ Не удалось пометить исход поста %s: %v", p.ID, err)
			continue
		}
		if arm, ok := analyzer.ArmSnapshot(key); ok {
			if err := st.SaveArm(arm); err != nil {
				log.Printf("⚠️ Не удалось сохранить руку %s: %v", key, err)
			}
		}
		log.Printf("📊 Исход собран: пост %s, рука %s, вовлеченность %.3f.", shorten(p.ID, 8), key, rate)
	}
}

// checkAndBackup проверяет, нужно ли делать бэкап (Раз в неделю, Воскресенье, 03:00)
func checkAndBackup(bot *tele.Bot, st *Store) {
	now := time.Now()
	if now.Weekday() == time.Sunday && now.Hour() == 3 && now.Minute() == 0 {
		log.Println("💾 Время еженедельного бэкапа...")
		PerformBackup(bot, st)
		// Ждем минуту, чтобы не отправить дважды в течение 03:00
		time.Sleep(61 * time.Second)
	}
}

// PerformBackup выполняет оптимизацию, снимает копию БД в storage/backups
// и отправляет ее админам. Отправляем копию, а не живой файл: его в этот
// момент может писать SQLite.
func PerformBackup(bot *tele.Bot, st *Store) {
	if err := st.Vacuum(); err != nil {
		log.Printf("⚠️ Ошибка Vacuum перед бэкапом: %v", err)
	}
	if err := prepareBackupFile(st.FilePath, dbBackupFilePath); err != nil {
		log.Printf("❌ Не удалось снять копию БД для бэкапа: %v", err)
		return
	}

	file := &tele.Document{
		File:     tele.FromDisk(dbBackupFilePath),
		Caption:  fmt.Sprintf("💾 <b>Авто-Бэкап базы данных</b>\n📅 %s\n📦 <i>Weekly Backup</i>", time.Now().Format("02.01.2006 15:04")),
		FileName: "plamya_backup.db",
	}

	if len(config.AdminIDs) == 0 {
		log.Println("⚠️ Нет админов для отправки бэкапа.")
		return
	}
	for _, adminID := range config.AdminIDs {
		_, err := bot.Send(&tele.User{ID: adminID}, file, tele.ModeHTML)
		if err != nil {
			log.Printf("⚠️ Не удалось отправить бэкап админу %d: %v", adminID, err)
		} else {
			log.Printf("✅ Бэкап отправлен админу %d", adminID)
		}
	}
}

// prepareBackupFile копирует файл БД в каталог бэкапов через .tmp и rename,
// чтобы никогда не оставить на диске полузаписанную копию.
func prepareBackupFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

func checkAndSendReport(bot *tele.Bot, st *Store) {
	s, err := st.GetSettings()
	if err != nil || s == nil {
		return
	}
	if !s.ReportActive {
		return
	}
	now := time.Now()
	if s.ReportLastRun.Year() == now.Year() && s.ReportLastRun.YearDay() == now.YearDay() {
		return
	}
	if int(now.Weekday()) != s.ReportWeekday {
		return
	}
	targetTime, err := time.Parse("15:04", s.ReportTime)
	if err != nil {
		return
	}
	if now.Hour() != targetTime.Hour() || now.Minute() != targetTime.Minute() {
		return
	}

	report := buildWeeklyReport(st)
	for _, adminID := range config.AdminIDs {
		_ = sendWithRetry(3, 500*time.Millisecond, func() error {
			_, e := bot.Send(&tele.User{ID: adminID}, report, tele.ModeHTML)
			return e
		})
		if img, err := engagement.GenerateTrendImage(); err == nil {
			photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(img))}
			_ = sendWithRetry(3, 500*time.Millisecond, func() error {
				_, e := bot.Send(&tele.User{ID: adminID}, photo)
				return e
			})
		} else {
			log.Printf("⚠️ Не удалось построить график активности: %v", err)
		}
	}
	s.ReportLastRun = now
	_ = st.UpdateSettings(s)
}

// buildWeeklyReport собирает сводку: бандит, посты, вовлеченность.
func buildWeeklyReport(st *Store) string {
	var sb strings.Builder
	sb.WriteString("📊 <b>Еженедельный отчет PLAMYA</b>\n\n")

	total, scored := st.CountPosts()
	sb.WriteString(fmt.Sprintf("📬 Постов всего: %d, с исходом: %d\n", total, scored))
	sb.WriteString(fmt.Sprintf("🎰 Исходов у бандита: %d\n", analyzer.TotalOutcomes()))
	sb.WriteString(fmt.Sprintf("💬 Диалогов в воронке: %d\n\n", funnel.ContextCount()))

	arms := analyzer.SnapshotArms()
	if len(arms) > 0 {
		sb.WriteString("<b>Руки бандита:</b>\n")
		shown := 0
		for _, a := range arms {
			if a.Pulls == 0 {
				continue
			}
			sb.WriteString(fmt.Sprintf("• %s: %d исп., EMA %.3f\n", a.Key, a.Pulls, a.RewardEMA))
			shown++
			if shown >= 10 {
				break
			}
		}
		sb.WriteString("\n")
	}

	top := engagement.TopPosts(3)
	if len(top) > 0 {
		sb.WriteString("<b>Топ постов недели:</b>\n")
		for _, pe := range top {
			sb.WriteString(fmt.Sprintf("• «%s» — 💬 %d, ❤️ %d\n", pe.Preview, pe.CommentCount, pe.ReactionCount))
		}
	}
	return sb.String()
}

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ==========================================
// МОДЕЛИ
// ==========================================

// ArmRecord — персистентная копия статистики руки бандита.
type ArmRecord struct {
	ID         uint   `gorm:"primaryKey"`
	PostType   string `gorm:"index;uniqueIndex:idx_arm_key"`
	Segment    string `gorm:"index;uniqueIndex:idx_arm_key"`
	HourBucket int    `gorm:"uniqueIndex:idx_arm_key"`
	Pulls      int
	RewardSum  float64
	RewardEMA  float64
	Weights    string `gorm:"type:text"` // JSON [3]float64
	UpdatedAt  time.Time
}

// PublishedPost — выпущенный пост и его судьба.
// EngagementRate заполняется после сбора исхода (24-48ч).
type PublishedPost struct {
	ID             string `gorm:"type:text;primaryKey"` // UUID — ключ идемпотентности исходов
	PostType       string `gorm:"index"`
	Segment        string
	HourBucket     int
	Persona        string
	Hook           string `gorm:"type:text"`
	Text           string `gorm:"type:text"`
	Score          float64
	MessageID      int64 `gorm:"index"`
	PublishedAt    time.Time
	OutcomeAt      *time.Time
	EngagementRate float64
}

// Product — позиция каталога продукции.
type Product struct {
	ID          uint     `gorm:"primaryKey"`
	Name        string   `gorm:"index"`
	Aliases     []string `gorm:"serializer:json"`
	Category    string   `gorm:"index"`
	Price       int
	Description string `gorm:"type:text"`
}

// DialogRecord — снимок состояния воронки после обработанного сообщения.
type DialogRecord struct {
	ID            string `gorm:"type:text;primaryKey" bson:"_id,omitempty"`
	UserID        int64  `gorm:"index" bson:"user_id"`
	Stage         string `bson:"stage"`
	Intent        string `bson:"intent"`
	Temperature   string `bson:"temperature"`
	MessagesCount int    `bson:"messages_count"`
	Text          string `gorm:"type:text" bson:"text"`
	CreatedAt     time.Time `gorm:"autoCreateTime" bson:"created_at"`
}

// BotSettings — расписание и переключатели автопостинга.
type BotSettings struct {
	ID            uint   `gorm:"primaryKey"`
	PublishTime   string `gorm:"default:'10:00'"`
	IsActive      bool   `gorm:"default:false"`
	LastRun       time.Time
	TargetChatID  int64
	ReportActive  bool   `gorm:"default:false"`
	ReportTime    string `gorm:"default:'09:15'"`
	ReportWeekday int    `gorm:"default:1"`
	ReportLastRun time.Time
}

// ==========================================
// ХРАНИЛИЩЕ
// ==========================================

type Store struct {
	DB       *gorm.DB
	FilePath string
	Mu       sync.RWMutex
}

func NewStore(file string) *Store {
	st := &Store{FilePath: file}
	st.Connect()
	return st
}

func (st *Store) Connect() {
	st.Mu.Lock()
	defer st.Mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(st.FilePath), 0755); err != nil {
		log.Fatalf("❌ Ошибка создания директории БД: %v", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)", st.FilePath)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Silent),
		PrepareStmt: true,
	})
	if err != nil {
		log.Fatalf("❌ Ошибка БД: %v", err)
	}

	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(2 * time.Hour)

	if err := db.AutoMigrate(&ArmRecord{}, &PublishedPost{}, &Product{}, &DialogRecord{}, &BotSettings{}); err != nil {
		log.Printf("⚠️ Ошибка AutoMigrate: %v", err)
	}

	var settings BotSettings
	if result := db.First(&settings, 1); result.Error != nil {
		db.Create(&BotSettings{ID: 1, PublishTime: "10:00", IsActive: false})
	} else {
		updated := false
		if settings.PublishTime == "" {
			settings.PublishTime = "10:00"
			updated = true
		}
		if settings.ReportTime == "" {
			settings.ReportTime = "09:15"
			updated = true
		}
		if settings.ReportWeekday == 0 {
			settings.ReportWeekday = 1
			updated = true
		}
		if updated {
			db.Save(&settings)
		}
	}

	st.DB = db
	log.Println("🔌 БД подключена (WAL).")
}

func (st *Store) CloseDB() error {
	st.Mu.Lock()
	defer st.Mu.Unlock()
	if st.DB == nil {
		return nil
	}
	sqlDB, err := st.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (st *Store) Vacuum() error {
	st.Mu.Lock()
	defer st.Mu.Unlock()
	return st.DB.Exec("VACUUM").Error
}

// ==========================================
// НАСТРОЙКИ
// ==========================================

func (st *Store) GetSettings() (*BotSettings, error) {
	var s BotSettings
	result := st.DB.First(&s, 1)
	return &s, result.Error
}

func (st *Store) UpdateSettings(s *BotSettings) error {
	return st.DB.Save(s).Error
}

// ==========================================
// РУКИ БАНДИТА
// ==========================================

func (st *Store) LoadArms() ([]ArmStats, error) {
	var records []ArmRecord
	if err := st.DB.Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]ArmStats, 0, len(records))
	for _, r := range records {
		a := ArmStats{
			Key: ArmKey{
				PostType:   r.PostType,
				Segment:    r.Segment,
				HourBucket: r.HourBucket,
			},
			Pulls:     r.Pulls,
			RewardSum: r.RewardSum,
			RewardEMA: r.RewardEMA,
			UpdatedAt: r.UpdatedAt,
		}
		if r.Weights != "" {
			if err := json.Unmarshal([]byte(r.Weights), &a.Weights); err != nil {
				log.Printf("⚠️ Не удалось прочитать веса руки %s: %v", a.Key, err)
			}
		}
		out = append(out, a)
	}
	return out, nil
}

func (st *Store) SaveArm(a ArmStats) error {
	raw, err := json.Marshal(a.Weights)
	if err != nil {
		return err
	}
	rec := ArmRecord{
		PostType:   a.Key.PostType,
		Segment:    a.Key.Segment,
		HourBucket: a.Key.HourBucket,
		Pulls:      a.Pulls,
		RewardSum:  a.RewardSum,
		RewardEMA:  a.RewardEMA,
		Weights:    string(raw),
		UpdatedAt:  a.UpdatedAt,
	}
	var existing ArmRecord
	res := st.DB.Where("post_type = ? AND segment = ? AND hour_bucket = ?",
		rec.PostType, rec.Segment, rec.HourBucket).First(&existing)
	if res.Error == nil {
		rec.ID = existing.ID
	}
	return st.DB.Save(&rec).Error
}

func (st *Store) SaveArms(arms []ArmStats) error {
	for _, a := range arms {
		if err := st.SaveArm(a); err != nil {
			return err
		}
	}
	return nil
}

// ==========================================
// ПОСТЫ
// ==========================================

func (st *Store) CreatePost(p *PublishedPost) error {
	return st.DB.Create(p).Error
}

// PostsAwaitingOutcome — посты без исхода, опубликованные в окне [from, to].
func (st *Store) PostsAwaitingOutcome(from, to time.Time) []PublishedPost {
	var posts []PublishedPost
	st.DB.Where("outcome_at IS NULL AND published_at >= ? AND published_at <= ?", from, to).
		Order("published_at asc").Find(&posts)
	return posts
}

func (st *Store) MarkOutcome(postID string, rate float64) error {
	now := time.Now()
	return st.DB.Model(&PublishedPost{}).Where("id = ?", postID).Updates(map[string]any{
		"outcome_at":      &now,
		"engagement_rate": rate,
	}).Error
}

func (st *Store) RecentPosts(limit int) []PublishedPost {
	if limit <= 0 {
		limit = 10
	}
	var posts []PublishedPost
	st.DB.Order("published_at desc").Limit(limit).Find(&posts)
	return posts
}

// RollingTypeRates — средняя вовлеченность по типам постов за трейлинг-окно.
func (st *Store) RollingTypeRates(window time.Duration) map[string]float64 {
	since := time.Now().Add(-window)
	type row struct {
		PostType string
		AvgRate  float64
	}
	var rows []row
	st.DB.Model(&PublishedPost{}).
		Select("post_type, avg(engagement_rate) as avg_rate").
		Where("outcome_at IS NOT NULL AND published_at >= ?", since).
		Group("post_type").
		Scan(&rows)
	out := make(map[string]float64, len(rows))
	for _, r := range rows {
		out[r.PostType] = r.AvgRate
	}
	return out
}

func (st *Store) CountPosts() (total, scored int64) {
	st.DB.Model(&PublishedPost{}).Count(&total)
	st.DB.Model(&PublishedPost{}).Where("outcome_at IS NOT NULL").Count(&scored)
	return total, scored
}

// ==========================================
// ПРОДУКЦИЯ
// ==========================================

func (st *Store) ListProducts() []Product {
	var items []Product
	st.DB.Order("name asc").Find(&items)
	return items
}

func (st *Store) CountProducts() int64 {
	var count int64
	st.DB.Model(&Product{}).Count(&count)
	return count
}

func (st *Store) SeedProducts(items []Product) error {
	for i := range items {
		if err := st.DB.Create(&items[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

func (st *Store) FindProduct(query string) *Product {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	var items []Product
	st.DB.Find(&items)
	for i := range items {
		if strings.Contains(strings.ToLower(items[i].Name), query) {
			return &items[i]
		}
		for _, alias := range items[i].Aliases {
			if strings.Contains(strings.ToLower(alias), query) {
				return &items[i]
			}
		}
	}
	return nil
}

func (st *Store) RandomProduct() *Product {
	var p Product
	res := st.DB.Order("RANDOM()").First(&p)
	if res.Error != nil {
		return nil
	}
	return &p
}

package app

import (
	"bytes"
	"encoding/json"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	tele "gopkg.in/telebot.v4"
)

// ==========================================
// ТРЕКЕР ВОВЛЕЧЕННОСТИ
// ==========================================

// PostEngagement — счетчики реакции аудитории на один опубликованный пост.
type PostEngagement struct {
	PostID        int64     `json:"post_id"`   // message_id в канале
	PostUUID      string    `json:"post_uuid"` // связь с PublishedPost в БД
	Preview       string    `json:"preview"`
	CommentCount  int       `json:"comment_count"`
	ReactionCount int       `json:"reaction_count"`
	PublishedAt   time.Time `json:"published_at"`
	LastActivity  time.Time `json:"last_activity"`
}

type EngagementData struct {
	TotalMessages  int                       `json:"total_messages"`
	TotalReactions int                       `json:"total_reactions"`
	Users          map[int64]string          `json:"users"`
	Posts          map[int64]*PostEngagement `json:"posts"`
	ActivityLog    map[string]int            `json:"activity_log"` // YYYY-MM-DD -> сообщений за день
}

type EngagementTracker struct {
	mu       sync.Mutex
	FilePath string
	Data     EngagementData
}

func NewEngagementTracker(path string) *EngagementTracker {
	et := &EngagementTracker{
		FilePath: path,
		Data: EngagementData{
			Users:       make(map[int64]string),
			Posts:       make(map[int64]*PostEngagement),
			ActivityLog: make(map[string]int),
		},
	}
	et.Load()
	return et
}

func (et *EngagementTracker) Load() {
	et.mu.Lock()
	defer et.mu.Unlock()

	file, err := os.ReadFile(et.FilePath)
	if err != nil {
		return
	}
	if err := json.Unmarshal(file, &et.Data); err != nil {
		log.Printf("⚠️ Поврежден файл вовлеченности, начинаем заново: %v", err)
	}
	if et.Data.Users == nil {
		et.Data.Users = make(map[int64]string)
	}
	if et.Data.Posts == nil {
		et.Data.Posts = make(map[int64]*PostEngagement)
	}
	if et.Data.ActivityLog == nil {
		et.Data.ActivityLog = make(map[string]int)
	}
}

func (et *EngagementTracker) Save() {
	et.mu.Lock()
	defer et.mu.Unlock()
	et.saveLocked()
}

func (et *EngagementTracker) saveLocked() {
	data, err := json.MarshalIndent(et.Data, "", "  ")
	if err != nil {
		log.Printf("❌ Ошибка сериализации вовлеченности: %v", err)
		return
	}
	if err := atomicWrite(et.FilePath, data); err != nil {
		log.Printf("❌ Ошибка сохранения вовлеченности: %v", err)
	}
}

// RegisterPublished заводит счетчики для нового поста канала.
func (et *EngagementTracker) RegisterPublished(messageID int64, postUUID, preview string) {
	et.mu.Lock()
	defer et.mu.Unlock()

	et.Data.Posts[messageID] = &PostEngagement{
		PostID:       messageID,
		PostUUID:     postUUID,
		Preview:      shorten(preview, 80),
		PublishedAt:  time.Now(),
		LastActivity: time.Now(),
	}
	et.saveLocked()
}

// TrackMessage учитывает сообщение в группе обсуждения. Комментарии к посту
// канала приходят как reply на автофорвард (sender 777000 или SenderChat).
func (et *EngagementTracker) TrackMessage(c tele.Context) {
	et.trackIncoming(c.Message())
}

func (et *EngagementTracker) trackIncoming(msg *tele.Message) {
	if msg == nil || msg.Sender == nil {
		return
	}

	et.mu.Lock()
	defer et.mu.Unlock()

	et.Data.TotalMessages++
	et.Data.Users[msg.Sender.ID] = msg.Sender.FirstName
	day := time.Now().Format("2006-01-02")
	et.Data.ActivityLog[day]++

	if msg.ReplyTo != nil {
		origin := channelPostID(msg.ReplyTo)
		if origin != 0 {
			if pe, ok := et.Data.Posts[origin]; ok {
				pe.CommentCount++
				pe.LastActivity = time.Now()
			}
		}
	}

	// Пишем на диск не чаще, чем раз в 10 сообщений
	if et.Data.TotalMessages%10 == 0 {
		et.saveLocked()
	}
}

// TrackReaction учитывает изменение реакций на сообщение.
func (et *EngagementTracker) TrackReaction(c tele.Context) {
	et.trackReactionUpdate(c.Update().MessageReaction)
}

func (et *EngagementTracker) trackReactionUpdate(upd *tele.MessageReaction) {
	if upd == nil {
		return
	}

	et.mu.Lock()
	defer et.mu.Unlock()

	delta := len(upd.NewReaction) - len(upd.OldReaction)
	if delta <= 0 {
		return
	}
	et.Data.TotalReactions += delta

	if pe, ok := et.Data.Posts[int64(upd.MessageID)]; ok {
		pe.ReactionCount += delta
		pe.LastActivity = time.Now()
	}
}

// channelPostID достает message_id исходного поста канала из автофорварда.
func channelPostID(msg *tele.Message) int64 {
	if msg == nil {
		return 0
	}
	if msg.Sender != nil && msg.Sender.ID == 777000 {
		return int64(msg.ID)
	}
	if msg.SenderChat != nil && msg.SenderChat.Type == tele.ChatChannel {
		return int64(msg.ID)
	}
	return 0
}

// EngagementRate считает нормированную вовлеченность поста в [0, 1].
// Реакция весит 1, комментарий 2 (комментарий — более дорогое действие).
func (et *EngagementTracker) EngagementRate(messageID int64, audience int) float64 {
	et.mu.Lock()
	defer et.mu.Unlock()

	pe, ok := et.Data.Posts[messageID]
	if !ok || audience <= 0 {
		return 0
	}
	raw := float64(pe.ReactionCount+2*pe.CommentCount) / float64(audience)
	return clamp01(raw)
}

// PostCounters возвращает копию счетчиков поста (для отчетов).
func (et *EngagementTracker) PostCounters(messageID int64) (PostEngagement, bool) {
	et.mu.Lock()
	defer et.mu.Unlock()
	pe, ok := et.Data.Posts[messageID]
	if !ok {
		return PostEngagement{}, false
	}
	return *pe, true
}

// TopPosts — посты с наибольшей активностью, для еженедельного отчета.
func (et *EngagementTracker) TopPosts(limit int) []PostEngagement {
	et.mu.Lock()
	defer et.mu.Unlock()

	out := make([]PostEngagement, 0, len(et.Data.Posts))
	for _, pe := range et.Data.Posts {
		out = append(out, *pe)
	}
	sort.Slice(out, func(i, j int) bool {
		si := out[i].ReactionCount + 2*out[i].CommentCount
		sj := out[j].ReactionCount + 2*out[j].CommentCount
		return si > sj
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// GenerateTrendImage рисует график активности за последние 14 дней.
func (et *EngagementTracker) GenerateTrendImage() ([]byte, error) {
	et.mu.Lock()
	days := make([]string, 0, 14)
	values := make([]float64, 0, 14)
	now := time.Now()
	for i := 13; i >= 0; i-- {
		day := now.AddDate(0, 0, -i).Format("2006-01-02")
		days = append(days, day[5:])
		values = append(values, float64(et.Data.ActivityLog[day]))
	}
	et.mu.Unlock()

	ticks := make([]chart.Tick, 0, len(days))
	xs := make([]float64, 0, len(days))
	for i, d := range days {
		xs = append(xs, float64(i))
		if i%2 == 0 {
			ticks = append(ticks, chart.Tick{Value: float64(i), Label: d})
		}
	}

	graph := chart.Chart{
		Title:  "Активность в обсуждениях, 14 дней",
		Width:  900,
		Height: 400,
		XAxis: chart.XAxis{
			Ticks: ticks,
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Сообщений в день",
				XValues: xs,
				YValues: values,
				Style: chart.Style{
					StrokeColor: chart.ColorBlue,
					FillColor:   chart.ColorBlue.WithAlpha(40),
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

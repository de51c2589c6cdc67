package app

import (
	"path/filepath"
	"testing"

	tele "gopkg.in/telebot.v4"
)

func newTestTracker(t *testing.T) *EngagementTracker {
	t.Helper()
	return NewEngagementTracker(filepath.Join(t.TempDir(), "engagement.json"))
}

func TestReactionsCountTowardEngagement(t *testing.T) {
	et := newTestTracker(t)
	et.RegisterPublished(500, "uuid-500", "текст поста")

	// Пользователь поставил одну реакцию
	et.trackReactionUpdate(&tele.MessageReaction{
		MessageID:   500,
		NewReaction: make([]tele.Reaction, 1),
	})
	// Снятие реакции (дельта отрицательная) не учитывается
	et.trackReactionUpdate(&tele.MessageReaction{
		MessageID:   500,
		OldReaction: make([]tele.Reaction, 1),
	})
	et.trackReactionUpdate(nil)

	pe, ok := et.PostCounters(500)
	if !ok {
		t.Fatal("пост не зарегистрирован")
	}
	if pe.ReactionCount != 1 {
		t.Fatalf("реакций %d, ожидалась 1", pe.ReactionCount)
	}
	if et.Data.TotalReactions != 1 {
		t.Fatalf("общий счетчик реакций %d, ожидался 1", et.Data.TotalReactions)
	}
}

func TestCommentsCountTowardPost(t *testing.T) {
	et := newTestTracker(t)
	et.RegisterPublished(700, "uuid-700", "пост канала")

	// Комментарий — reply на автофорвард поста (sender 777000)
	et.trackIncoming(&tele.Message{
		ID:     9001,
		Sender: &tele.User{ID: 123, FirstName: "Анна"},
		ReplyTo: &tele.Message{
			ID:     700,
			Sender: &tele.User{ID: 777000},
		},
	})
	// Обычное сообщение без reply пост не трогает
	et.trackIncoming(&tele.Message{
		ID:     9002,
		Sender: &tele.User{ID: 124, FirstName: "Ольга"},
	})

	pe, ok := et.PostCounters(700)
	if !ok {
		t.Fatal("пост не зарегистрирован")
	}
	if pe.CommentCount != 1 {
		t.Fatalf("комментариев %d, ожидался 1", pe.CommentCount)
	}
	if et.Data.TotalMessages != 2 {
		t.Fatalf("сообщений %d, ожидалось 2", et.Data.TotalMessages)
	}
}

func TestEngagementRateWeighting(t *testing.T) {
	et := newTestTracker(t)
	et.RegisterPublished(42, "uuid-42", "пост")

	// 3 реакции и 1 комментарий: комментарий весит вдвое
	et.trackReactionUpdate(&tele.MessageReaction{
		MessageID:   42,
		NewReaction: make([]tele.Reaction, 3),
	})
	et.trackIncoming(&tele.Message{
		ID:      1,
		Sender:  &tele.User{ID: 1, FirstName: "Ира"},
		ReplyTo: &tele.Message{ID: 42, Sender: &tele.User{ID: 777000}},
	})

	// (3 + 2*1) / 100 = 0.05
	if got := et.EngagementRate(42, 100); got != 0.05 {
		t.Fatalf("вовлеченность %v, ожидалось 0.05", got)
	}
	// Нулевая аудитория и неизвестный пост дают 0
	if got := et.EngagementRate(42, 0); got != 0 {
		t.Fatalf("при нулевой аудитории ожидался 0, получено %v", got)
	}
	if got := et.EngagementRate(9999, 100); got != 0 {
		t.Fatalf("для неизвестного поста ожидался 0, получено %v", got)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engagement.json")

	et := NewEngagementTracker(path)
	et.RegisterPublished(11, "uuid-11", "пост для сохранения")
	et.trackReactionUpdate(&tele.MessageReaction{
		MessageID:   11,
		NewReaction: make([]tele.Reaction, 2),
	})
	et.Save()

	fresh := NewEngagementTracker(path)
	pe, ok := fresh.PostCounters(11)
	if !ok {
		t.Fatal("пост потерян после перезагрузки")
	}
	if pe.ReactionCount != 2 || pe.PostUUID != "uuid-11" {
		t.Fatalf("данные искажены: %+v", pe)
	}
}

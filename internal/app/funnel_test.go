package app

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStageAdvancesEveryThirdMessage(t *testing.T) {
	cf := NewConversationalFunnel()
	var userID int64 = 100

	wantStages := []FunnelStage{
		StageGreeting, StageGreeting, StageDiscovery,
		StageDiscovery, StageDiscovery, StageDeepening,
		StageDeepening, StageDeepening, StageSolution,
	}
	for i, want := range wantStages {
		res := cf.ProcessMessage(userID, "расскажи подробнее")
		if res.Stage != want {
			t.Fatalf("сообщение %d: стадия %s, ожидалась %s", i+1, res.Stage, want)
		}
	}
}

func TestHotLeadFastTracksToSolution(t *testing.T) {
	cf := NewConversationalFunnel()

	res := cf.ProcessMessage(200, "хочу купить, куда писать?")
	if res.Temperature != TempHot {
		t.Fatalf("температура %s, ожидалась HOT", res.Temperature)
	}
	if res.Stage != StageSolution {
		t.Fatalf("горячий лид не перепрыгнул в SOLUTION: %s", res.Stage)
	}
}

func TestHotLeadDoesNotLeaveClosing(t *testing.T) {
	cf := NewConversationalFunnel()
	var userID int64 = 300

	// 12 нейтральных сообщений доводят до CLOSING (шаг на каждом третьем)
	for i := 0; i < 12; i++ {
		cf.ProcessMessage(userID, "понятно")
	}
	ctx := cf.GetContext(userID)
	if ctx.Stage != StageClosing {
		t.Fatalf("подготовка: стадия %s, ожидалась CLOSING", ctx.Stage)
	}

	res := cf.ProcessMessage(userID, "хочу купить")
	if res.Stage != StageClosing {
		t.Fatalf("горячий лид откатил CLOSING в %s", res.Stage)
	}
}

func TestFollowUpIsTerminal(t *testing.T) {
	cf := NewConversationalFunnel()
	var userID int64 = 400

	for i := 0; i < 30; i++ {
		cf.ProcessMessage(userID, "ясно")
	}
	ctx := cf.GetContext(userID)
	if ctx.Stage != StageFollowUp {
		t.Fatalf("после 30 сообщений стадия %s, ожидалась FOLLOW_UP", ctx.Stage)
	}
}

func TestIntentPriority(t *testing.T) {
	cf := NewConversationalFunnel()

	tests := []struct {
		text string
		want Intent
	}{
		// Продукт и скепсис в одном сообщении: продукт приоритетнее
		{"коллаген это развод?", IntentProduct},
		// Бизнес и цели: бизнес приоритетнее
		{"хочу доход и улучшить здоровье", IntentBusiness},
		{"это пирамида и лохотрон", IntentSkeptic},
		{"хочу наладить энергию", IntentGoal},
		{"привет, как дела", IntentCurious},
	}
	for i, tt := range tests {
		res := cf.ProcessMessage(int64(500+i), tt.text)
		if res.Intent != tt.want {
			t.Fatalf("%q: намерение %s, ожидалось %s", tt.text, res.Intent, tt.want)
		}
	}
}

func TestTemperatureHotBeatsCold(t *testing.T) {
	cf := NewConversationalFunnel()

	// Сомнение и горячий сигнал вместе: HOT побеждает
	res := cf.ProcessMessage(600, "не уверена, но сколько стоит?")
	if res.Temperature != TempHot {
		t.Fatalf("температура %s, ожидалась HOT", res.Temperature)
	}

	res = cf.ProcessMessage(601, "не верю, сомневаюсь")
	if res.Temperature != TempCold {
		t.Fatalf("температура %s, ожидалась COLD", res.Temperature)
	}
}

func TestWholeWordMatching(t *testing.T) {
	cf := NewConversationalFunnel()

	// "доходчиво" не должно срабатывать на слово "доход"
	res := cf.ProcessMessage(700, "объясни доходчиво")
	if res.Intent == IntentBusiness {
		t.Fatal("подстрока внутри слова не должна определять намерение")
	}
}

func TestDialogScenario(t *testing.T) {
	cf := NewConversationalFunnel()
	var userID int64 = 800

	res := cf.ProcessMessage(userID, "привет")
	if res.Stage != StageGreeting || res.Intent != IntentCurious || res.Temperature != TempWarm {
		t.Fatalf("сообщение 1: %+v", res)
	}

	res = cf.ProcessMessage(userID, "хочу похудеть")
	if res.Intent != IntentProduct {
		t.Fatalf("сообщение 2: намерение %s, ожидалось PRODUCT", res.Intent)
	}
	if res.Stage != StageGreeting {
		t.Fatalf("сообщение 2: стадия %s, ожидалась GREETING", res.Stage)
	}

	res = cf.ProcessMessage(userID, "сколько стоит коллаген?")
	if res.Intent != IntentProduct {
		t.Fatalf("сообщение 3: намерение %s, ожидалось PRODUCT", res.Intent)
	}
	if res.Temperature != TempHot {
		t.Fatalf("сообщение 3: температура %s, ожидалась HOT", res.Temperature)
	}
	// Третье сообщение: шаг по порядку стадий срабатывает раньше фаст-трека
	if res.Stage != StageDiscovery {
		t.Fatalf("сообщение 3: стадия %s, ожидалась DISCOVERY", res.Stage)
	}
}

func TestHistoryCap(t *testing.T) {
	cf := NewConversationalFunnel()
	var userID int64 = 900

	for i := 0; i < 60; i++ {
		cf.ProcessMessage(userID, fmt.Sprintf("сообщение %d", i))
	}
	ctx := cf.GetContext(userID)
	if len(ctx.History) != 50 {
		t.Fatalf("история не обрезана: %d записей", len(ctx.History))
	}
	// Должны остаться последние 50
	if ctx.History[len(ctx.History)-1] != "сообщение 59" {
		t.Fatalf("потеряно последнее сообщение: %q", ctx.History[len(ctx.History)-1])
	}
	if ctx.History[0] != "сообщение 10" {
		t.Fatalf("обрезка не с той стороны: %q", ctx.History[0])
	}
}

func TestGetContextReturnsCopy(t *testing.T) {
	cf := NewConversationalFunnel()
	cf.ProcessMessage(1000, "привет")

	ctx := cf.GetContext(1000)
	ctx.Stage = StageClosing
	ctx.History[0] = "подмена"

	fresh := cf.GetContext(1000)
	if fresh.Stage != StageGreeting {
		t.Fatalf("мутация копии затронула оригинал: %s", fresh.Stage)
	}
	if fresh.History[0] != "привет" {
		t.Fatalf("мутация истории затронула оригинал: %q", fresh.History[0])
	}
}

func TestGetContextUnknownUser(t *testing.T) {
	cf := NewConversationalFunnel()
	if ctx := cf.GetContext(9999); ctx != nil {
		t.Fatalf("для неизвестного пользователя ожидался nil, получено %+v", ctx)
	}
}

func TestExtendProductLexicon(t *testing.T) {
	cf := NewConversationalFunnel()
	cf.ExtendProductLexicon([]string{"Морской коллаген", "чай матча", ""})

	res := cf.ProcessMessage(1100, "а чай матча у вас есть?")
	if res.Intent != IntentProduct {
		t.Fatalf("название из каталога не распознано: %s", res.Intent)
	}
}

func TestLoadLexiconOverridesFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.json")
	payload := `{"hot":["беру прямо сейчас"]}`
	if err := os.WriteFile(path, []byte(payload), 0644); err != nil {
		t.Fatal(err)
	}

	cf := NewConversationalFunnel()
	if err := cf.LoadLexicon(path); err != nil {
		t.Fatalf("загрузка валидного лексикона: %v", err)
	}

	// Новый горячий сигнал работает
	if res := cf.ProcessMessage(900, "беру прямо сейчас"); res.Temperature != TempHot {
		t.Fatalf("файловый сигнал не сработал: %s", res.Temperature)
	}
	// Незаполненные поля остаются встроенными
	if res := cf.ProcessMessage(901, "мне бы похудеть"); res.Intent != IntentProduct {
		t.Fatalf("встроенный словарь PRODUCT пострадал: %s", res.Intent)
	}
}

func TestLoadLexiconCorruptFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.json")
	if err := os.WriteFile(path, []byte("{сломанный json"), 0644); err != nil {
		t.Fatal(err)
	}

	cf := NewConversationalFunnel()
	if err := cf.LoadLexicon(path); err == nil {
		t.Fatal("поврежденный лексикон должен давать ошибку")
	}

	// Встроенный словарь продолжает работать
	if res := cf.ProcessMessage(910, "сколько стоит коллаген?"); res.Intent != IntentProduct || res.Temperature != TempHot {
		t.Fatalf("встроенный словарь пострадал: intent=%s temp=%s", res.Intent, res.Temperature)
	}
}

func TestLoadLexiconMissingFile(t *testing.T) {
	cf := NewConversationalFunnel()
	err := cf.LoadLexicon(filepath.Join(t.TempDir(), "нет-файла.json"))
	if !os.IsNotExist(err) {
		t.Fatalf("ожидалась ошибка отсутствия файла, получено: %v", err)
	}
}

func TestPruneStale(t *testing.T) {
	cf := NewConversationalFunnel()
	cf.ProcessMessage(1200, "привет")
	cf.ProcessMessage(1201, "привет")

	time.Sleep(5 * time.Millisecond)
	if removed := cf.PruneStale(time.Millisecond); removed != 2 {
		t.Fatalf("удалено %d контекстов, ожидалось 2", removed)
	}
	if cf.ContextCount() != 0 {
		t.Fatalf("контексты остались: %d", cf.ContextCount())
	}
}

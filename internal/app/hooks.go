package app

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

// ==========================================
// ХУКИ (неповторяющиеся открывашки постов)
// ==========================================

// HookTemplate — шаблон первой строки поста. Пустой список настроений,
// типов или персон означает "подходит всем".
type HookTemplate struct {
	Text      string   `json:"text"`
	Moods     []string `json:"moods,omitempty"`
	PostTypes []string `json:"post_types,omitempty"`
	Personas  []string `json:"personas,omitempty"`
}

// HookSelector выбирает случайный шаблон, избегая недавно использованных.
// Недавние хранятся в кольцевом буфере фиксированной емкости (FIFO).
type HookSelector struct {
	mu     sync.Mutex
	rng    *rand.Rand
	pool   []HookTemplate
	recent []string
	cap    int
}

func NewHookSelector(rng *rand.Rand, recencyCap int) *HookSelector {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if recencyCap <= 0 {
		recencyCap = 10
	}
	return &HookSelector{
		rng:  rng,
		pool: defaultHooks,
		cap:  recencyCap,
	}
}

// LoadFile заменяет встроенный пул шаблонами из JSON-файла (если он есть).
func (hs *HookSelector) LoadFile(path string) (int, error) {
	var loaded []HookTemplate
	if err := loadJSON(path, &loaded); err != nil {
		return 0, err
	}
	if len(loaded) == 0 {
		return 0, nil
	}
	hs.mu.Lock()
	hs.pool = loaded
	hs.mu.Unlock()
	return len(loaded), nil
}

// Select фильтрует пул по персоне/настроению/типу поста и выбирает случайный
// шаблон вне буфера недавних. Если фильтр недавних опустошает кандидатов,
// он снимается: лучше повтор, чем пустая строка или ошибка.
func (hs *HookSelector) Select(persona PersonaVersion, mood, postType string, avoidRecent bool) string {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	filtered := make([]HookTemplate, 0, len(hs.pool))
	for _, t := range hs.pool {
		if !setAllows(t.Moods, mood) {
			continue
		}
		if !setAllows(t.PostTypes, postType) {
			continue
		}
		if !setAllows(t.Personas, string(persona)) {
			continue
		}
		filtered = append(filtered, t)
	}
	if len(filtered) == 0 {
		filtered = hs.pool
	}
	if len(filtered) == 0 {
		return ""
	}

	candidates := filtered
	if avoidRecent {
		fresh := make([]HookTemplate, 0, len(filtered))
		for _, t := range filtered {
			if !hs.isRecentLocked(t.Text) {
				fresh = append(fresh, t)
			}
		}
		if len(fresh) > 0 {
			candidates = fresh
		}
	}

	chosen := candidates[hs.rng.Intn(len(candidates))]
	hs.rememberLocked(chosen.Text)
	return chosen.Text
}

// FillVariables подставляет значения в плейсхолдеры вида {name}.
// Плейсхолдер без значения остается как есть — это ошибка вызывающего,
// селектор ее не валидирует.
func FillVariables(template string, vars map[string]string) string {
	out := template
	for name, value := range vars {
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}
	return out
}

func (hs *HookSelector) isRecentLocked(text string) bool {
	for _, r := range hs.recent {
		if r == text {
			return true
		}
	}
	return false
}

func (hs *HookSelector) rememberLocked(text string) {
	hs.recent = append(hs.recent, text)
	if len(hs.recent) > hs.cap {
		hs.recent = hs.recent[len(hs.recent)-hs.cap:]
	}
}

// setAllows: пустое множество не ограничивает.
func setAllows(set []string, value string) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if s == value {
			return true
		}
	}
	return false
}

// ==========================================
// ВСТРОЕННЫЙ ПУЛ ШАБЛОНОВ
// ==========================================

var defaultHooks = []HookTemplate{
	// Доверие / экспертность
	{Text: "За {period} работы с {product} я поняла одну вещь.", Moods: []string{"trust"}, PostTypes: []string{"expertise", "product_showcase"}},
	{Text: "Меня часто спрашивают про {product}. Отвечаю раз и навсегда.", Moods: []string{"trust"}, PostTypes: []string{"expertise"}},
	{Text: "Три факта, о которых молчат производители.", Moods: []string{"trust"}, PostTypes: []string{"expertise"}},
	{Text: "Давайте честно разберем состав.", Moods: []string{"trust"}, PostTypes: []string{"expertise", "product_showcase"}},
	{Text: "Слушай, я долго не решалась об этом написать.", Moods: []string{"trust"}, Personas: []string{"friend"}},
	{Text: "Это сообщение я пишу как подруге.", Moods: []string{"trust"}, Personas: []string{"friend"}},

	// Боль / усталость
	{Text: "Сегодня без глянца. Просто как есть.", Moods: []string{"pain", "honest"}},
	{Text: "Я выгорела. И вот что мне помогло.", Moods: []string{"pain"}, PostTypes: []string{"personal_story", "lifestyle"}},
	{Text: "Знаете, что самое тяжелое в работе на себя?", Moods: []string{"pain"}, PostTypes: []string{"personal_story"}},
	{Text: "Неделя была — врагу не пожелаешь.", Moods: []string{"pain"}, Personas: []string{"tired"}},

	// Мечта / философия
	{Text: "Представьте утро, когда не надо никуда бежать.", Moods: []string{"dream"}},
	{Text: "Иногда один выбор меняет все.", Moods: []string{"dream"}, PostTypes: []string{"motivation"}},
	{Text: "Свобода — это не место. Это расписание.", Moods: []string{"dream"}, PostTypes: []string{"motivation"}},
	{Text: "Я долго думала, что так живут только другие.", Moods: []string{"dream", "crisis"}},

	// Страх упустить
	{Text: "Осталось {slots} мест. Это не маркетинг, это математика.", Moods: []string{"fear"}, PostTypes: []string{"business_invite"}},
	{Text: "Пока вы читаете этот пост, кто-то уже начал.", Moods: []string{"fear"}, PostTypes: []string{"business_invite", "motivation"}},
	{Text: "В {month} цены изменятся. Говорю заранее.", Moods: []string{"fear"}, PostTypes: []string{"business_invite", "product_showcase"}},
	{Text: "Через год вы пожалеете, что не начали сегодня.", Moods: []string{"fear"}},

	// Любопытство / интрига
	{Text: "Я не должна была этого рассказывать, но...", Moods: []string{"curiosity"}},
	{Text: "Вчера произошло то, чего я ждала два года.", Moods: []string{"curiosity"}, PostTypes: []string{"intrigue", "personal_story"}},
	{Text: "Угадайте, сколько я заработала в этом месяце.", Moods: []string{"curiosity", "honest"}, PostTypes: []string{"intrigue"}},
	{Text: "Есть одна вещь, которую я делаю каждое утро.", Moods: []string{"curiosity"}, PostTypes: []string{"lifestyle", "intrigue"}},
	{Text: "Досмотрите до конца — там самое важное.", Moods: []string{"curiosity"}, PostTypes: []string{"intrigue"}},

	// Честность / цифры
	{Text: "Мой отчет за {month}: без прикрас.", Moods: []string{"honest"}, PostTypes: []string{"personal_story", "business_invite"}},
	{Text: "Покажу скрины. Все, как есть.", Moods: []string{"honest"}},
	{Text: "Первые три месяца я работала в минус.", Moods: []string{"honest", "crisis"}},

	// Конфликт / провокация
	{Text: "Мне написали: «это все обман». Отвечаю публично.", Moods: []string{"conflict"}},
	{Text: "Непопулярное мнение, но я его скажу.", Moods: []string{"conflict"}, Personas: []string{"rebel", "conflict"}},
	{Text: "Хватит верить в сказки про легкие деньги.", Moods: []string{"conflict", "honest"}},
	{Text: "Муж был против. Свекровь крутила у виска.", Moods: []string{"conflict", "crisis"}, PostTypes: []string{"personal_story"}},

	// Кризис / перелом
	{Text: "Два года назад я считала мелочь на проезд.", Moods: []string{"crisis"}, PostTypes: []string{"personal_story", "motivation"}},
	{Text: "Это было мое дно. Рассказываю впервые.", Moods: []string{"crisis"}, Personas: []string{"dark_moment"}},
	{Text: "В тот вечер я решила: хватит.", Moods: []string{"crisis"}},

	// Энергия / хаос
	{Text: "Я сделала ЭТО! Не верю сама себе!", Moods: []string{"energy"}, Personas: []string{"crazy"}},
	{Text: "За один день: три встречи, две доставки и одна мечта.", Moods: []string{"energy"}, PostTypes: []string{"lifestyle"}},
	{Text: "Проснулась в 5 утра от идеи. Держите.", Moods: []string{"energy"}},

	// Универсальные
	{Text: "Доброе утро, мои хорошие."},
	{Text: "Небольшая история из жизни."},
	{Text: "Сохраните этот пост, он вам пригодится."},
	{Text: "Коротко о главном за неделю."},
}

package app

import (
	"math/rand"
	"sync"
	"time"
)

// ==========================================
// ПЕРСОНЫ (голос и настроение текста)
// ==========================================

// PersonaVersion — закрытый набор нарративных голосов.
type PersonaVersion string

const (
	PersonaExpert      PersonaVersion = "expert"
	PersonaFriend      PersonaVersion = "friend"
	PersonaRebel       PersonaVersion = "rebel"
	PersonaPhilosopher PersonaVersion = "philosopher"
	PersonaCrazy       PersonaVersion = "crazy"
	PersonaTired       PersonaVersion = "tired"
	PersonaFomo        PersonaVersion = "fomo"
	PersonaCliffhanger PersonaVersion = "cliffhanger"
	PersonaRawHonest   PersonaVersion = "raw_honest"
	PersonaConflict    PersonaVersion = "conflict"
	PersonaDarkMoment  PersonaVersion = "dark_moment"
)

var allPersonas = []PersonaVersion{
	PersonaExpert, PersonaFriend, PersonaRebel, PersonaPhilosopher,
	PersonaCrazy, PersonaTired, PersonaFomo, PersonaCliffhanger,
	PersonaRawHonest, PersonaConflict, PersonaDarkMoment,
}

// PersonaContext — все, что нужно генератору, чтобы писать в выбранном голосе.
// Temperature здесь — параметр генерации текста, не "температура" лида из воронки.
type PersonaContext struct {
	Version        PersonaVersion
	Name           string
	Tone           string
	Emoji          []string
	SpeechPatterns []string
	Mood           string
	Temperature    float64
}

var personaProfiles = map[PersonaVersion]PersonaContext{
	PersonaExpert: {
		Version: PersonaExpert, Name: "Эксперт",
		Tone:  "спокойный, уверенный, с опорой на факты и личный опыт работы с клиентами",
		Emoji: []string{"📊", "🔬", "✅"},
		SpeechPatterns: []string{
			"По моим наблюдениям за три года...",
			"Давайте разберем по пунктам.",
			"Это подтверждается исследованиями.",
		},
		Mood: "trust", Temperature: 0.5,
	},
	PersonaFriend: {
		Version: PersonaFriend, Name: "Подруга",
		Tone:  "теплый, разговорный, как сообщение близкой подруге",
		Emoji: []string{"💛", "☕", "🤗"},
		SpeechPatterns: []string{
			"Слушай, расскажу честно...",
			"Ты же знаешь, как это бывает.",
			"Давно хотела с тобой поделиться.",
		},
		Mood: "trust", Temperature: 0.8,
	},
	PersonaRebel: {
		Version: PersonaRebel, Name: "Бунтарка",
		Tone:  "дерзкий, против общепринятых правил, рубит с плеча",
		Emoji: []string{"🔥", "💥", "🖤"},
		SpeechPatterns: []string{
			"Надоело молчать об этом.",
			"Все делают наоборот — и зря.",
			"Скажу то, за что меня не любят.",
		},
		Mood: "conflict", Temperature: 0.9,
	},
	PersonaPhilosopher: {
		Version: PersonaPhilosopher, Name: "Философ",
		Tone:  "размеренный, с обобщениями о жизни и выборе пути",
		Emoji: []string{"🌌", "🌊", "🕯"},
		SpeechPatterns: []string{
			"Иногда я думаю о том, что...",
			"Жизнь устроена проще, чем кажется.",
			"Каждый выбор — это отказ от чего-то.",
		},
		Mood: "dream", Temperature: 0.7,
	},
	PersonaCrazy: {
		Version: PersonaCrazy, Name: "Сумасбродка",
		Tone:  "хаотичный, восторженный, перескакивает с мысли на мысль",
		Emoji: []string{"🤯", "😂", "🎢"},
		SpeechPatterns: []string{
			"Вы не поверите, что я сделала!",
			"Это был самый безумный день.",
			"Ок, я все решила за пять минут.",
		},
		Mood: "energy", Temperature: 1.0,
	},
	PersonaTired: {
		Version: PersonaTired, Name: "Уставшая",
		Tone:  "тихий, без прикрас, о выгорании и маленьких победах",
		Emoji: []string{"😮‍💨", "🌧", "🫶"},
		SpeechPatterns: []string{
			"Сегодня был тяжелый день.",
			"Не буду делать вид, что все идеально.",
			"Но знаете, что меня держит?",
		},
		Mood: "pain", Temperature: 0.6,
	},
	PersonaFomo: {
		Version: PersonaFomo, Name: "Ажиотаж",
		Tone:  "срочный, про уходящие возможности и ограниченные места",
		Emoji: []string{"⏳", "🚨", "🏃‍♀️"},
		SpeechPatterns: []string{
			"Осталось всего два дня.",
			"Пока вы думаете — места заканчиваются.",
			"Потом будете жалеть, что не успели.",
		},
		Mood: "fear", Temperature: 0.7,
	},
	PersonaCliffhanger: {
		Version: PersonaCliffhanger, Name: "Интрига",
		Tone:  "недосказанный, обрывает историю на самом интересном",
		Emoji: []string{"🤫", "👀", "🧩"},
		SpeechPatterns: []string{
			"Продолжение — завтра.",
			"Но об этом я расскажу позже.",
			"Угадайте, чем все закончилось.",
		},
		Mood: "curiosity", Temperature: 0.8,
	},
	PersonaRawHonest: {
		Version: PersonaRawHonest, Name: "Без фильтров",
		Tone:  "предельно откровенный, с цифрами и неудачами",
		Emoji: []string{"🧾", "💬", "🤍"},
		SpeechPatterns: []string{
			"Покажу реальные цифры.",
			"Первый месяц я заработала ноль.",
			"Без прикрас и сторис про успех.",
		},
		Mood: "honest", Temperature: 0.6,
	},
	PersonaConflict: {
		Version: PersonaConflict, Name: "Спор",
		Tone:  "полемичный, сталкивает два лагеря мнений",
		Emoji: []string{"⚔️", "🗣", "🙅‍♀️"},
		SpeechPatterns: []string{
			"Мне вчера написали: «это не работает».",
			"Одни говорят одно, другие — другое.",
			"И вот что я ответила.",
		},
		Mood: "conflict", Temperature: 0.8,
	},
	PersonaDarkMoment: {
		Version: PersonaDarkMoment, Name: "Темный час",
		Tone:  "драматичный, о точке падения перед переломом",
		Emoji: []string{"🌑", "💔", "🌅"},
		SpeechPatterns: []string{
			"Два года назад я плакала на кухне.",
			"Это было дно. Настоящее.",
			"А потом случилось то, что все изменило.",
		},
		Mood: "crisis", Temperature: 0.7,
	},
}

// Какие персоны уместны для какого типа поста. Отображение тотально:
// каждый тип из postTypes обязан иметь запись (проверяется тестом).
var postTypePersonas = map[string][]PersonaVersion{
	"expertise":        {PersonaExpert, PersonaFriend, PersonaRawHonest},
	"personal_story":   {PersonaFriend, PersonaTired, PersonaDarkMoment, PersonaRawHonest},
	"product_showcase": {PersonaExpert, PersonaFriend, PersonaCrazy},
	"business_invite":  {PersonaFomo, PersonaRebel, PersonaConflict, PersonaRawHonest},
	"motivation":       {PersonaPhilosopher, PersonaDarkMoment, PersonaRebel},
	"lifestyle":        {PersonaFriend, PersonaCrazy, PersonaTired},
	"intrigue":         {PersonaCliffhanger, PersonaFomo, PersonaCrazy},
}

// ==========================================
// МЕНЕДЖЕР ПЕРСОН
// ==========================================

type PersonaManager struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewPersonaManager(rng *rand.Rand) *PersonaManager {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &PersonaManager{rng: rng}
}

// Select выбирает персону под тип поста. Неизвестный тип — не ошибка:
// откатываемся на "подругу", доступность важнее строгости.
func (pm *PersonaManager) Select(postType string) PersonaContext {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	candidates, ok := postTypePersonas[postType]
	if !ok || len(candidates) == 0 {
		return personaProfiles[PersonaFriend]
	}
	version := candidates[pm.rng.Intn(len(candidates))]
	profile, ok := personaProfiles[version]
	if !ok {
		return personaProfiles[PersonaFriend]
	}
	return profile
}

// Profile возвращает профиль по версии (для ответов в диалоге).
func (pm *PersonaManager) Profile(version PersonaVersion) PersonaContext {
	if p, ok := personaProfiles[version]; ok {
		return p
	}
	return personaProfiles[PersonaFriend]
}

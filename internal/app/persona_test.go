package app

import (
	"math/rand"
	"testing"
)

func TestEveryPostTypeHasPersonas(t *testing.T) {
	for _, pt := range postTypes {
		candidates, ok := postTypePersonas[pt]
		if !ok || len(candidates) == 0 {
			t.Fatalf("тип поста %q без персон", pt)
		}
		for _, v := range candidates {
			if _, ok := personaProfiles[v]; !ok {
				t.Fatalf("тип %q ссылается на персону %q без профиля", pt, v)
			}
		}
	}
}

func TestEveryPersonaHasCompleteProfile(t *testing.T) {
	for _, v := range allPersonas {
		p, ok := personaProfiles[v]
		if !ok {
			t.Fatalf("персона %q без профиля", v)
		}
		if p.Version != v {
			t.Fatalf("профиль %q хранит чужую версию %q", v, p.Version)
		}
		if p.Name == "" || p.Tone == "" || p.Mood == "" {
			t.Fatalf("профиль %q неполон: %+v", v, p)
		}
		if len(p.SpeechPatterns) == 0 {
			t.Fatalf("персона %q без характерных фраз", v)
		}
		if p.Temperature <= 0 || p.Temperature > 1.0 {
			t.Fatalf("персона %q: температура генерации %v вне (0, 1]", v, p.Temperature)
		}
	}
}

func TestSelectRespectsPostTypeMapping(t *testing.T) {
	pm := NewPersonaManager(rand.New(rand.NewSource(11)))

	for _, pt := range postTypes {
		allowed := make(map[PersonaVersion]bool)
		for _, v := range postTypePersonas[pt] {
			allowed[v] = true
		}
		for i := 0; i < 30; i++ {
			got := pm.Select(pt)
			if !allowed[got.Version] {
				t.Fatalf("тип %q: выбрана недопустимая персона %q", pt, got.Version)
			}
		}
	}
}

func TestSelectUnknownTypeFallsBack(t *testing.T) {
	pm := NewPersonaManager(rand.New(rand.NewSource(11)))

	got := pm.Select("несуществующий_тип")
	if got.Version != PersonaFriend {
		t.Fatalf("для неизвестного типа ожидалась подруга, получено %q", got.Version)
	}
}

func TestProfileFallback(t *testing.T) {
	pm := NewPersonaManager(nil)
	if got := pm.Profile(PersonaVersion("nope")); got.Version != PersonaFriend {
		t.Fatalf("для неизвестной версии ожидалась подруга, получено %q", got.Version)
	}
	if got := pm.Profile(PersonaExpert); got.Version != PersonaExpert {
		t.Fatalf("известная версия подменена: %q", got.Version)
	}
}

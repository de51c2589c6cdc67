package app

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
)

// ==========================================
// КОНТЕКСТНЫЙ БАНДИТ (выбор типа поста)
// ==========================================

// ArmKey — составной ключ руки: тип поста × сегмент × окно дня.
type ArmKey struct {
	PostType   string
	Segment    string
	HourBucket int
}

func (k ArmKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.PostType, k.Segment, bucketLabel(k.HourBucket))
}

// ArmStats — накопленная статистика одной руки. Руки создаются лениво
// и никогда не удаляются: старые теряют вес через recency-коэффициент.
type ArmStats struct {
	Key       ArmKey
	Pulls     int
	RewardSum float64
	RewardEMA float64
	// Линейные веса признаков: [скользящая ставка типа, совпадение дня недели, свежесть]
	Weights   [3]float64
	UpdatedAt time.Time
}

// ContextFeatures — контекст текущего слота публикации.
type ContextFeatures struct {
	Segment string
	Hour    int
	Weekday time.Weekday
	// Скользящая вовлеченность по типам постов за трейлинг-окно (обычно 30 дней).
	TypeRates map[string]float64
}

type AnalyzerConfig struct {
	Segment         string
	MinObservations int     // ниже этого числа исходов — холодный старт
	ScoreGate       float64 // порог допуска черновика
	ExplorationC    float64 // масштаб бонуса исследования
	EMAAlpha        float64 // шаг экспоненциального сглаживания наград
}

// DraftScorer — подменяемая эвристика оценки черновика (0..1).
// Получает текст и предсказанную бандитом награду руки.
type DraftScorer func(text string, predicted float64) float64

type PerformanceAnalyzer struct {
	mu        sync.Mutex
	rng       *rand.Rand
	cfg       AnalyzerConfig
	arms      map[ArmKey]*ArmStats
	seenPosts map[string]bool // идемпотентность RecordOutcome по post_id
	outcomes  int
	Scorer    DraftScorer
}

// Типы постов, между которыми выбирает бандит.
var postTypes = []string{
	"expertise",
	"personal_story",
	"product_showcase",
	"business_invite",
	"motivation",
	"lifestyle",
	"intrigue",
}

func NewPerformanceAnalyzer(cfg AnalyzerConfig, rng *rand.Rand) *PerformanceAnalyzer {
	if cfg.MinObservations <= 0 {
		cfg.MinObservations = 20
	}
	if cfg.ScoreGate <= 0 {
		cfg.ScoreGate = 0.35
	}
	if cfg.ExplorationC <= 0 {
		cfg.ExplorationC = 0.25
	}
	if cfg.EMAAlpha <= 0 || cfg.EMAAlpha >= 1 {
		cfg.EMAAlpha = 0.3
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	pa := &PerformanceAnalyzer{
		rng:       rng,
		cfg:       cfg,
		arms:      make(map[ArmKey]*ArmStats),
		seenPosts: make(map[string]bool),
	}
	pa.Scorer = pa.heuristicScore
	return pa
}

// SelectNextArm выбирает тип поста для текущего слота.
// Холодный старт — равномерный случайный выбор; дальше UCB-оценка:
// линейный прогноз + бонус исследования, убывающий как 1/sqrt(pulls+1).
func (pa *PerformanceAnalyzer) SelectNextArm(feat ContextFeatures) ArmKey {
	pa.mu.Lock()
	defer pa.mu.Unlock()

	if feat.Segment == "" {
		feat.Segment = pa.cfg.Segment
	}
	bucket := hourBucket(feat.Hour)

	candidates := make([]ArmKey, 0, len(postTypes))
	for _, pt := range postTypes {
		candidates = append(candidates, ArmKey{PostType: pt, Segment: feat.Segment, HourBucket: bucket})
	}

	if pa.outcomes < pa.cfg.MinObservations {
		return candidates[pa.rng.Intn(len(candidates))]
	}

	mean := pa.crossArmMeanLocked()
	best := candidates[0]
	bestEstimate := math.Inf(-1)
	bestPulls := math.MaxInt

	for _, key := range candidates {
		arm := pa.arms[key]
		pulls := 0
		prediction := mean // рука без истории получает нейтральный приор, а не ноль
		if arm != nil {
			pulls = arm.Pulls
			if arm.Pulls > 0 {
				prediction = pa.predictLocked(arm, feat)
			}
		}
		estimate := prediction + pa.cfg.ExplorationC/math.Sqrt(float64(pulls)+1)

		// При равенстве оценок предпочитаем наименее испытанную руку.
		if estimate > bestEstimate || (estimate == bestEstimate && pulls < bestPulls) {
			best = key
			bestEstimate = estimate
			bestPulls = pulls
		}
	}
	return best
}

// predictLocked — линейный прогноз награды руки в данном контексте.
func (pa *PerformanceAnalyzer) predictLocked(arm *ArmStats, feat ContextFeatures) float64 {
	base := arm.RewardEMA

	typeRate := feat.TypeRates[arm.Key.PostType]
	weekdayMatch := 0.0
	if arm.UpdatedAt.Weekday() == feat.Weekday {
		weekdayMatch = 1.0
	}
	freshness := recencyWeight(arm.UpdatedAt)

	adj := arm.Weights[0]*typeRate + arm.Weights[1]*weekdayMatch + arm.Weights[2]*freshness
	return clamp01(base*freshness + adj)
}

// recencyWeight — влияние руки затухает с половинным периодом 30 дней.
func recencyWeight(updated time.Time) float64 {
	if updated.IsZero() {
		return 1.0
	}
	age := time.Since(updated).Hours() / 24
	if age <= 0 {
		return 1.0
	}
	return math.Pow(0.5, age/30)
}

// RecordOutcome фиксирует наблюдаемую вовлеченность опубликованного поста.
// Повторный отчет по тому же post_id игнорируется — pulls не задваивается.
func (pa *PerformanceAnalyzer) RecordOutcome(postID string, key ArmKey, engagementRate float64) error {
	if engagementRate < 0 || math.IsNaN(engagementRate) || math.IsInf(engagementRate, 0) {
		return fmt.Errorf("недопустимая вовлеченность: %v", engagementRate)
	}
	pa.mu.Lock()
	defer pa.mu.Unlock()

	if postID != "" && pa.seenPosts[postID] {
		return nil
	}
	if postID != "" {
		pa.seenPosts[postID] = true
	}

	arm := pa.arms[key]
	if arm == nil {
		arm = &ArmStats{Key: key}
		pa.arms[key] = arm
	}

	arm.Pulls++
	arm.RewardSum += engagementRate
	if arm.Pulls == 1 {
		arm.RewardEMA = engagementRate
	} else {
		arm.RewardEMA += pa.cfg.EMAAlpha * (engagementRate - arm.RewardEMA)
	}

	// Инкрементальная EMA-коррекция весов признаков: сдвигаем каждый вес
	// в сторону ошибки прогноза, пропорционально значению признака.
	err := engagementRate - arm.RewardEMA
	arm.Weights[0] += 0.1 * err
	arm.Weights[1] += 0.05 * err
	arm.Weights[2] += 0.05 * err
	arm.UpdatedAt = time.Now()

	pa.outcomes++
	return nil
}

// ==========================================
// ОЦЕНКА ЧЕРНОВИКА ПЕРЕД ПУБЛИКАЦИЕЙ
// ==========================================

// Фразы, которые гарантированно режут охваты или нарушают правила площадки.
var bannedPhrases = []string{
	"гарантированный доход",
	"пассивный доход без вложений",
	"быстрые деньги",
	"пирамида",
	"успешный успех",
}

// ScoreDraft возвращает оценку 0..1 и вердикт допуска.
// В холодном старте гейт разрешающий: нехватка данных — не повод блокировать выпуск.
func (pa *PerformanceAnalyzer) ScoreDraft(text string, key ArmKey) (float64, bool) {
	pa.mu.Lock()
	defer pa.mu.Unlock()

	predicted := pa.crossArmMeanLocked()
	if arm := pa.arms[key]; arm != nil && arm.Pulls > 0 {
		predicted = arm.RewardEMA
	}

	score := pa.Scorer(text, predicted)
	if pa.outcomes < pa.cfg.MinObservations {
		return score, true
	}
	return score, score >= pa.cfg.ScoreGate
}

// heuristicScore — дешевая эвристика: окно длины, запрещенные фразы,
// смесь с прогнозом бандита. Заменяется через поле Scorer.
func (pa *PerformanceAnalyzer) heuristicScore(text string, predicted float64) float64 {
	runes := []rune(strings.TrimSpace(text))
	n := len(runes)

	lengthScore := 0.0
	switch {
	case n == 0:
		lengthScore = 0.0
	case n < 100:
		lengthScore = float64(n) / 100 * 0.6
	case n <= 1800:
		lengthScore = 1.0
	case n <= 3500:
		lengthScore = 0.7
	default:
		lengthScore = 0.3
	}

	lower := strings.ToLower(text)
	phrasePenalty := 0.0
	for _, phrase := range bannedPhrases {
		if strings.Contains(lower, phrase) {
			phrasePenalty += 0.4
		}
	}

	score := 0.6*lengthScore + 0.4*clamp01(predicted*4) - phrasePenalty
	return clamp01(score)
}

// ==========================================
// СНАПШОТЫ И ВОССТАНОВЛЕНИЕ
// ==========================================

func (pa *PerformanceAnalyzer) RestoreArms(arms []ArmStats) {
	pa.mu.Lock()
	defer pa.mu.Unlock()
	for i := range arms {
		a := arms[i]
		pa.arms[a.Key] = &a
		pa.outcomes += a.Pulls
	}
}

func (pa *PerformanceAnalyzer) SnapshotArms() []ArmStats {
	pa.mu.Lock()
	defer pa.mu.Unlock()
	out := make([]ArmStats, 0, len(pa.arms))
	for _, a := range pa.arms {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

func (pa *PerformanceAnalyzer) ArmSnapshot(key ArmKey) (ArmStats, bool) {
	pa.mu.Lock()
	defer pa.mu.Unlock()
	arm, ok := pa.arms[key]
	if !ok {
		return ArmStats{}, false
	}
	return *arm, true
}

func (pa *PerformanceAnalyzer) TotalOutcomes() int {
	pa.mu.Lock()
	defer pa.mu.Unlock()
	return pa.outcomes
}

func (pa *PerformanceAnalyzer) crossArmMeanLocked() float64 {
	var sum float64
	var pulls int
	for _, a := range pa.arms {
		sum += a.RewardSum
		pulls += a.Pulls
	}
	if pulls == 0 {
		return 0.05 // нейтральный приор до первых наблюдений
	}
	return sum / float64(pulls)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

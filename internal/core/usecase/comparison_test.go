package usecase

import (
	"reflect"
	"testing"
)

func TestComparisonDetectorExplicitPair(t *testing.T) {
	detector := NewComparisonDetector()

	intent := detector.Detect("IMO DCS vs EU MRV", "")
	if !intent.IsComparison {
		t.Fatal("expected comparison intent")
	}
	if want := []string{"IMO DCS", "EU MRV"}; !reflect.DeepEqual(intent.Topics, want) {
		t.Fatalf("topics = %v, want %v", intent.Topics, want)
	}
	if intent.Method != "explicit_pair" {
		t.Fatalf("method = %q, want explicit_pair", intent.Method)
	}
	if intent.Confidence < 0.9 {
		t.Fatalf("confidence = %v, want >= 0.9", intent.Confidence)
	}
}

func TestComparisonDetectorKeywordGate(t *testing.T) {
	detector := NewComparisonDetector()

	// Mentions two acronyms but no comparison keyword at all.
	intent := detector.Detect("IMO DCS 보고서와 EU MRV 제출 기한 알려줘", "")
	if intent.IsComparison {
		t.Fatalf("expected no comparison without keyword, got %+v", intent)
	}
}

func TestComparisonDetectorPronounWithHistory(t *testing.T) {
	detector := NewComparisonDetector()
	history := "Q: IMO DCS란?\nA: IMO DCS는 국제해사기구의 연료유 데이터 수집 제도입니다.\n\nQ: EU MRV란?\nA: EU MRV는 유럽연합의 배출량 모니터링 제도입니다."

	intent := detector.Detect("둘의 차이가 뭐야?", history)
	if !intent.IsComparison {
		t.Fatal("expected comparison intent")
	}
	if want := []string{"IMO DCS", "EU MRV"}; !reflect.DeepEqual(intent.Topics, want) {
		t.Fatalf("topics = %v, want %v (chronological)", intent.Topics, want)
	}
	if intent.Method != "history" {
		t.Fatalf("method = %q, want history", intent.Method)
	}
}

func TestComparisonDetectorPronounWithoutHistory(t *testing.T) {
	detector := NewComparisonDetector()

	intent := detector.Detect("둘의 차이가 뭐야?", "")
	if intent.IsComparison {
		t.Fatalf("expected no comparison without history, got %+v", intent)
	}
}

func TestComparisonDetectorSemanticShape(t *testing.T) {
	detector := NewComparisonDetector()
	history := "Q: SEEMP 개요\nA: 선박에너지효율관리계획입니다.\n\nQ: CII 개요\nA: 탄소집약도지표입니다."

	intent := detector.Detect("어느 것이 더 중요한지 비교해줘", history)
	if !intent.IsComparison {
		t.Fatal("expected comparison intent")
	}
	if want := []string{"SEEMP", "CII"}; !reflect.DeepEqual(intent.Topics, want) {
		t.Fatalf("topics = %v, want %v", intent.Topics, want)
	}
	if intent.Method != "semantic" {
		t.Fatalf("method = %q, want semantic", intent.Method)
	}
}

func TestComparisonDetectorAcronymFallback(t *testing.T) {
	detector := NewComparisonDetector()

	intent := detector.Detect("SEEMP CII 차이 알려줘", "")
	if !intent.IsComparison {
		t.Fatal("expected comparison intent")
	}
	if want := []string{"SEEMP", "CII"}; !reflect.DeepEqual(intent.Topics, want) {
		t.Fatalf("topics = %v, want %v", intent.Topics, want)
	}
	if intent.Method != "acronym" {
		t.Fatalf("method = %q, want acronym", intent.Method)
	}
	if intent.Confidence >= 0.8 {
		t.Fatalf("acronym fallback should carry low confidence, got %v", intent.Confidence)
	}
}

func TestComparisonDetectorLowercaseSubjects(t *testing.T) {
	detector := NewComparisonDetector()

	// Lowercase subject names stay unrecognized by the fallback.
	intent := detector.Detect("seemp cii 차이", "")
	if intent.IsComparison {
		t.Fatalf("expected lowercase subjects to stay unrecognized, got %+v", intent)
	}
}

func TestComparisonDetectorTwoTopicsOnly(t *testing.T) {
	detector := NewComparisonDetector()

	intent := detector.Detect("EEXI vs CII", "")
	if !intent.IsComparison {
		t.Fatal("expected comparison intent")
	}
	if len(intent.Topics) != 2 {
		t.Fatalf("expected exactly two topics, got %v", intent.Topics)
	}
}

func TestTopicsFromHistoryDeduplicates(t *testing.T) {
	history := "Q: EU ETS란?\nA: EU ETS는 배출권 거래제입니다. EU ETS는 2024년부터 해운에 적용됩니다.\n\nQ: FuelEU 개요\nA: FUELEU 규정입니다."
	got := topicsFromHistory(history, 2)
	if want := []string{"EU ETS", "FUELEU"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("topics = %v, want %v", got, want)
	}
}

package booking

import "github.com/mmeshcher/yenabook/internal/model"

// FreeSlots возвращает минуты начала внутри [opens, closes), с которых можно записаться
// на услугу длительностью duration, не пересекаясь с busy. Кандидаты перебираются с шагом step.
func FreeSlots(busy []model.TimeRange, opens, closes, duration, step int) []int {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if closes <= opens || opens+duration > closes {
		return nil
	}

	var slots []int
	for start := opens; start+duration <= closes; start += step {
		candidate := model.TimeRange{Start: start, End: start + duration}
		if !overlapsAny(candidate, busy) {
			slots = append(slots, start)
		}
	}
	return slots
}

func overlapsAny(r model.TimeRange, busy []model.TimeRange) bool {
	for _, b := range busy {
		if r.Overlaps(b) {
			return true
		}
	}
	return false
}

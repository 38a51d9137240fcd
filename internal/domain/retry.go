package domain

// RetryDecision — результат RetryPolicy.Next.
type RetryDecision int

const (
	// RetryAllowed — можно запустить ещё одну попытку.
	RetryAllowed RetryDecision = iota

	// RetryExhausted — лимит попыток исчерпан.
	RetryExhausted
)

// String возвращает строковое представление RetryDecision.
func (d RetryDecision) String() string {
	if d == RetryAllowed {
		return "allowed"
	}
	return "exhausted"
}

// RetryPolicy — ограничение числа попыток.
//
// Используется и для скачиваний (AttemptsUsed = число строк download_attempts),
// и для compute jobs (AttemptsUsed = число записей "processing failed" в логе).
type RetryPolicy struct {
	AttemptsUsed int
	MaxAttempts  int
}

// Next решает, разрешена ли следующая попытка.
func (p RetryPolicy) Next() RetryDecision {
	if p.AttemptsUsed < p.MaxAttempts {
		return RetryAllowed
	}
	return RetryExhausted
}

// Exhausted возвращает true, если попыток больше нет.
func (p RetryPolicy) Exhausted() bool {
	return p.Next() == RetryExhausted
}

// Remaining возвращает число оставшихся попыток.
func (p RetryPolicy) Remaining() int {
	return max(p.MaxAttempts-p.AttemptsUsed, 0)
}

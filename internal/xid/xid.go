package xid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

func New(prefix string) string {
	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%s", prefix, id.String())
}

// Sequence formats human-facing document numbers such as PRD-00042.
func Sequence(prefix string, n int) string {
	return fmt.Sprintf("%s-%05d", prefix, n)
}

package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func StatusKey(productID uuid.UUID, engine string) string {
	return fmt.Sprintf("status:%s:%s", productID, engine)
}

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

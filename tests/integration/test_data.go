package integration

import (
	"fmt"
	"time"
)

// TestCredentials generates unique login credentials using a timestamp
func TestCredentials(suffix string) (userID, password string) {
	ts := time.Now().UnixNano()
	userID = fmt.Sprintf("it-%d-%s", ts, suffix)
	password = "CorrectHorse9!"
	return
}

package extract

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseDuration converts a clock-style duration ("M:SS" or "H:MM:SS",
// leading zeros allowed) to total seconds.
func ParseDuration(text string) (int, error) {
	parts := strings.Split(strings.TrimSpace(text), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("malformed duration %q", text)
	}

	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("malformed duration %q", text)
		}
		nums[i] = n
	}

	if len(nums) == 2 {
		return nums[0]*60 + nums[1], nil
	}
	return nums[0]*3600 + nums[1]*60 + nums[2], nil
}

// FormatDuration renders seconds as "H:MM:SS" when the duration reaches an
// hour and "M:SS" otherwise. The leading unit is unpadded; the rest are
// zero-padded to two digits. FormatDuration is the inverse of
// ParseDuration for any non-negative day-bounded value.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := seconds % 3600 / 60
	s := seconds % 60

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

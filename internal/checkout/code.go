package checkout

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewCode returns a checkout code of the form YYYYMMDD-XXXXXXXX. The suffix
// comes from a random uuid; the unique index on checkout_groups.code is the
// final arbiter.
func NewCode(now time.Time) string {
	id := uuid.New()
	return now.UTC().Format("20060102") + "-" + strings.ToUpper(hex.EncodeToString(id[:4]))
}

// OrderCode derives a vendor order code from its group code.
func OrderCode(groupCode string, vendorIndex int) string {
	return fmt.Sprintf("%s-V%d", groupCode, vendorIndex)
}

package materialize

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"cashflow/internal/core"
)

// idNamespace scopes generated transaction IDs.
var idNamespace = uuid.MustParse("6f1d7a52-3c4e-4b8a-9f0e-2d5b8c1a7e34")

// TransactionID returns a name-based UUID for one occurrence. Each occurrence
// gets its own ID, and replaying the same input yields the same IDs.
func TransactionID(sourceID string, kind core.TransactionKind, seq int, date time.Time) string {
	name := strings.Join([]string{
		sourceID,
		string(kind),
		strconv.Itoa(seq),
		date.UTC().Format(time.RFC3339Nano),
	}, "|")
	return uuid.NewSHA1(idNamespace, []byte(name)).String()
}

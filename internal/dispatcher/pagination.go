package dispatcher

import (
	"encoding/json"

	"github.com/thearchitectit/mcp-runtime/internal/protocol"
)

// maxPageLimit and minPageLimit bound the `limit` field accepted on any
// `*/list` request (§4.9): zero is explicitly rejected rather than
// treated as "no limit", since that ambiguity is what let an early draft
// of the teacher's rule-listing endpoint return its entire table in one
// response.
const (
	minPageLimit = 1
	maxPageLimit = 1000
)

// listParams is the shape shared by tools/list, resources/list, and
// prompts/list request params. Limit is a pointer so an absent field
// (valid: use the default) can be told apart from an explicit 0, which
// §4.9 requires be rejected as InvalidParams.
type listParams struct {
	Cursor string `json:"cursor"`
	Limit  *int   `json:"limit"`
}

// parsePagination decodes and validates the pagination fields of a
// `*/list` request. Missing params (nil/empty) are valid and mean
// "first page, default limit".
func parsePagination(raw json.RawMessage) (protocol.Pagination, *protocol.Error) {
	if len(raw) == 0 {
		return protocol.Pagination{}, nil
	}

	var p listParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return protocol.Pagination{}, protocol.NewError(protocol.CodeInvalidParams, "invalid pagination params", nil)
	}
	if p.Limit == nil {
		return protocol.Pagination{Cursor: p.Cursor}, nil
	}
	if *p.Limit < minPageLimit || *p.Limit > maxPageLimit {
		return protocol.Pagination{}, protocol.NewError(
			protocol.CodeInvalidParams,
			"limit must be between 1 and 1000",
			map[string]int{"min": minPageLimit, "max": maxPageLimit},
		)
	}

	return protocol.Pagination{Cursor: p.Cursor, Limit: *p.Limit}, nil
}

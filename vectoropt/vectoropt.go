// Package vectoropt substitutes bound TO_VECTOR parameters that appear
// in an ORDER BY clause with a literal JSON array, since IRIS requires a
// literal rather than a bound parameter in that position (spec §4.5).
package vectoropt

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/intersystems-community/iris-pgwire-sub007/pgerr"
)

// toVectorRe matches TO_VECTOR($n, TYPE) appearing anywhere after
// an ORDER BY keyword. The ORDER BY boundary is checked by the caller
// (Rewrite splits the statement at the first ORDER BY) rather than by
// this regex, since regex alone can't reliably bound "rest of
// statement".
var toVectorRe = regexp.MustCompile(`(?i)TO_VECTOR\(\s*\$(\d+)\s*,\s*([A-Za-z0-9_]+)\s*\)`)

var orderByRe = regexp.MustCompile(`(?i)\bORDER\s+BY\b`)

// Substitution describes one TO_VECTOR($n, TYPE) occurrence that was
// replaced with a literal.
type Substitution struct {
	ParamIndex int
	Type       string
	Literal    string
}

// Rewrite scans sql for TO_VECTOR($n, TYPE) occurrences within an ORDER
// BY clause, replaces the $n in each with a quoted JSON-array literal
// decoded from params[n-1] (keeping TO_VECTOR and its TYPE), and
// returns the rewritten SQL plus the set of parameter
// indexes that were consumed (and must be dropped from the effective
// bind parameter list). columnVectorType, when non-empty, is the
// declared vector datatype of the column being ordered by; a mismatch
// against the TYPE argument raises a translated error rather than
// letting IRIS fault.
func Rewrite(sql string, params [][]byte, columnVectorType string) (string, map[int]bool, []Substitution, error) {
	loc := orderByRe.FindStringIndex(sql)
	if loc == nil {
		return sql, nil, nil, nil
	}

	head, tail := sql[:loc[0]], sql[loc[0]:]
	if !toVectorRe.MatchString(tail) {
		return sql, nil, nil, nil
	}

	consumed := make(map[int]bool)
	var subs []Substitution
	var rewriteErr error

	newTail := toVectorRe.ReplaceAllStringFunc(tail, func(match string) string {
		groups := toVectorRe.FindStringSubmatch(match)
		paramIdx := atoiMust(groups[1])
		typ := strings.ToUpper(groups[2])

		if columnVectorType != "" && !strings.EqualFold(columnVectorType, typ) {
			rewriteErr = pgerr.Newf(pgerr.InvalidParameterValue,
				"TO_VECTOR type %s does not match column vector type %s", typ, columnVectorType)
			return match
		}

		if paramIdx < 1 || paramIdx > len(params) {
			rewriteErr = pgerr.Newf(pgerr.InvalidParameterValue, "TO_VECTOR references out-of-range parameter $%d", paramIdx)
			return match
		}

		floats, err := decodeVectorParam(params[paramIdx-1])
		if err != nil {
			rewriteErr = pgerr.Wrap(pgerr.InvalidParameterValue, err, "could not decode vector parameter for TO_VECTOR")
			return match
		}

		literal := formatJSONArray(floats)
		consumed[paramIdx] = true
		subs = append(subs, Substitution{ParamIndex: paramIdx, Type: typ, Literal: literal})
		return fmt.Sprintf("TO_VECTOR('%s', %s)", literal, typ)
	})

	if rewriteErr != nil {
		return "", nil, nil, rewriteErr
	}

	return head + newTail, consumed, subs, nil
}

// decodeVectorParam accepts either a `[f1,f2,...]` JSON array or a
// `base64:<...>` packed-float payload (default element width 4 bytes,
// little-endian float32), per spec §4.5.
func decodeVectorParam(raw []byte) ([]float32, error) {
	s := strings.TrimSpace(string(raw))
	if strings.HasPrefix(s, "base64:") {
		return decodeBase64Vector(strings.TrimPrefix(s, "base64:"))
	}
	if strings.HasPrefix(s, "[") {
		var floats []float32
		if err := json.Unmarshal(raw, &floats); err != nil {
			return nil, fmt.Errorf("invalid vector JSON array: %w", err)
		}
		return floats, nil
	}
	return nil, fmt.Errorf("unrecognized vector parameter encoding")
}

func decodeBase64Vector(encoded string) ([]float32, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 vector payload: %w", err)
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("base64 vector payload length %d is not a multiple of 4", len(data))
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		bits := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		floats[i] = math.Float32frombits(bits)
	}
	return floats, nil
}

func formatJSONArray(floats []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range floats {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(fmt.Sprintf("%g", f))
	}
	sb.WriteByte(']')
	return sb.String()
}

func atoiMust(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}

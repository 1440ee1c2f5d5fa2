package hashfunction

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-faster/city"
	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"
)

type HashFunctionType int

/* Pre-defined hash functions */
const (
	HashFunctionIdent  = HashFunctionType(0)
	HashFunctionMurmur = HashFunctionType(1)
	HashFunctionCity   = HashFunctionType(2)
)

/* Sharding column types */
const (
	ColumnTypeInteger  = "integer"
	ColumnTypeUinteger = "uinteger"
	ColumnTypeVarchar  = "varchar"
	ColumnTypeUUID     = "uuid"
)

var (
	errUnknownColumnType = func(ctype string, hf HashFunctionType) error {
		return fmt.Errorf("unknown column type '%s' for hash function '%s'", ctype, ToString(hf))
	}
	errUnknownValueType = func(v any, hf HashFunctionType) error {
		return fmt.Errorf("unknown type of value that the hash will be calculated from: %T for %s hash type", v, ToString(hf))
	}
)

func EncodeUInt64(input uint64) []byte {
	const ENCODING_BYTES_BIG = binary.MaxVarintLen64
	const ENCODING_BYTES = 8
	const BOUND = 1 << 56 /* 72057594037927936 */

	sz := ENCODING_BYTES
	if input >= BOUND {
		sz = ENCODING_BYTES_BIG
	}

	buf := make([]byte, sz)
	binary.PutUvarint(buf, input)
	return buf
}

// NormalizeValue converts a bound parameter or literal into the canonical Go
// type for the column type: int64 for integer, uint64 for uinteger and string
// otherwise. An empty ctype infers integer for Go integers and varchar for text.
func NormalizeValue(input any, ctype string) (any, error) {
	if ctype == "" {
		switch input.(type) {
		case string, []byte:
			ctype = ColumnTypeVarchar
		case uint, uint8, uint16, uint32, uint64:
			ctype = ColumnTypeUinteger
		default:
			ctype = ColumnTypeInteger
		}
	}

	switch ctype {
	case ColumnTypeInteger:
		switch v := input.(type) {
		case int:
			return int64(v), nil
		case int8:
			return int64(v), nil
		case int16:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case uint32:
			return int64(v), nil
		case uint64:
			return int64(v), nil
		case uint:
			return int64(v), nil
		case string:
			return strconv.ParseInt(v, 10, 64)
		case []byte:
			return strconv.ParseInt(string(v), 10, 64)
		}
	case ColumnTypeUinteger:
		switch v := input.(type) {
		case uint:
			return uint64(v), nil
		case uint32:
			return uint64(v), nil
		case uint64:
			return v, nil
		case int:
			if v >= 0 {
				return uint64(v), nil
			}
		case int64:
			if v >= 0 {
				return uint64(v), nil
			}
		case string:
			return strconv.ParseUint(v, 10, 64)
		}
	case ColumnTypeVarchar:
		switch v := input.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		}
	case ColumnTypeUUID:
		var s string
		switch v := input.(type) {
		case string:
			s = v
		case []byte:
			s = string(v)
		case uuid.UUID:
			s = v.String()
		default:
			return nil, fmt.Errorf("invalid uuid value %T", input)
		}
		s = strings.ToLower(s)
		if err := uuid.Validate(s); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown column type '%s'", ctype)
	}
	return nil, fmt.Errorf("cannot use %T as '%s'", input, ctype)
}

func ApplyMurmurHashFunction(input any, ctype string) (uint32, error) {
	switch ctype {
	case ColumnTypeInteger:
		if res, ok := input.(int64); ok {
			return murmur3.Sum32(EncodeUInt64(uint64(res))), nil
		}
		return 0, fmt.Errorf("invalid type for murmurhash '%s'", ColumnTypeInteger)
	case ColumnTypeUinteger:
		if res, ok := input.(uint64); ok {
			return murmur3.Sum32(EncodeUInt64(res)), nil
		}
		return 0, fmt.Errorf("invalid type for murmurhash '%s'", ColumnTypeUinteger)
	case ColumnTypeVarchar, ColumnTypeUUID:
		switch v := input.(type) {
		case []byte:
			return murmur3.Sum32(v), nil
		case string:
			return murmur3.Sum32([]byte(v)), nil
		default:
			return 0, errUnknownValueType(input, HashFunctionMurmur)
		}
	default:
		return 0, errUnknownColumnType(ctype, HashFunctionMurmur)
	}
}

func ApplyCityHashFunction(input any, ctype string) (uint32, error) {
	switch ctype {
	case ColumnTypeInteger:
		if res, ok := input.(int64); ok {
			return city.Hash32(EncodeUInt64(uint64(res))), nil
		}
		return 0, fmt.Errorf("invalid type for cityhash '%s'", ColumnTypeInteger)
	case ColumnTypeUinteger:
		if res, ok := input.(uint64); ok {
			return city.Hash32(EncodeUInt64(res)), nil
		}
		return 0, fmt.Errorf("invalid type for cityhash '%s'", ColumnTypeUinteger)
	case ColumnTypeVarchar, ColumnTypeUUID:
		switch v := input.(type) {
		case []byte:
			return city.Hash32(v), nil
		case string:
			return city.Hash32([]byte(v)), nil
		default:
			return 0, errUnknownValueType(input, HashFunctionCity)
		}
	default:
		return 0, errUnknownColumnType(ctype, HashFunctionCity)
	}
}

// ApplyHashFunction hashes a normalized value. Identity returns the value as is.
func ApplyHashFunction(input any, ctype string, hf HashFunctionType) (any, error) {
	switch hf {
	case HashFunctionIdent:
		if ctype == ColumnTypeUUID {
			s, ok := input.(string)
			if !ok {
				return nil, errUnknownValueType(input, hf)
			}
			if err := uuid.Validate(strings.ToLower(s)); err != nil {
				return nil, err
			}
		}
		return input, nil
	case HashFunctionMurmur:
		v, err := ApplyMurmurHashFunction(input, ctype)
		return uint64(v), err
	case HashFunctionCity:
		v, err := ApplyCityHashFunction(input, ctype)
		return uint64(v), err
	default:
		return nil, fmt.Errorf("unknown hash function type: %d", hf)
	}
}

// HashUint64 normalizes input for ctype and reduces it to an unsigned key.
// Identity is only defined for integer columns.
func HashUint64(input any, ctype string, hf HashFunctionType) (uint64, error) {
	if ctype == "" {
		switch input.(type) {
		case string, []byte:
			ctype = ColumnTypeVarchar
		default:
			ctype = ColumnTypeInteger
		}
	}
	v, err := NormalizeValue(input, ctype)
	if err != nil {
		return 0, err
	}
	h, err := ApplyHashFunction(v, ctype, hf)
	if err != nil {
		return 0, err
	}
	switch r := h.(type) {
	case uint64:
		return r, nil
	case int64:
		if r < 0 {
			return uint64(-r), nil
		}
		return uint64(r), nil
	default:
		return 0, errUnknownValueType(h, hf)
	}
}

// HashFunctionByName returns the HashFunctionType for a configured name.
func HashFunctionByName(hfn string) (HashFunctionType, error) {
	switch hfn {
	case "identity", "ident", "":
		return HashFunctionIdent, nil
	case "murmur":
		return HashFunctionMurmur, nil
	case "city":
		return HashFunctionCity, nil
	default:
		return 0, fmt.Errorf("unknown hash function type: %s", hfn)
	}
}

// ToString converts a HashFunctionType to its configuration name.
func ToString(hf HashFunctionType) string {
	switch hf {
	case HashFunctionIdent:
		return "identity"
	case HashFunctionMurmur:
		return "murmur"
	case HashFunctionCity:
		return "city"
	}
	return ""
}

package database

import (
	"database/sql/driver"
	"fmt"
	"math/big"
)

// BigInt is an arbitrary-precision non-negative integer stored as a
// decimal string column. Token amounts use up to 78 decimal digits
// (uint256), which overflows both int64 and the float64 integer range,
// so all arithmetic happens on the *big.Int form.
type BigInt big.Int

func NewBigInt(x *big.Int) *BigInt {
	if x == nil {
		return nil
	}
	return (*BigInt)(new(big.Int).Set(x))
}

// Zero returns a new BigInt with value 0.
func Zero() *BigInt {
	return (*BigInt)(new(big.Int))
}

func (b *BigInt) Int() *big.Int {
	return (*big.Int)(b)
}

// Add returns a new BigInt holding b + x. The receiver is not modified;
// a nil receiver counts as zero.
func (b *BigInt) Add(x *big.Int) *BigInt {
	sum := new(big.Int)
	if b != nil {
		sum.Set(b.Int())
	}
	return (*BigInt)(sum.Add(sum, x))
}

func (b *BigInt) String() string {
	if b == nil {
		return "0"
	}
	return b.Int().String()
}

func (b *BigInt) Value() (driver.Value, error) {
	if b == nil {
		return nil, nil
	}
	return b.Int().String(), nil
}

func (b *BigInt) Scan(value interface{}) error {
	var s string
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	case int64:
		b.Int().SetInt64(v)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into BigInt", value)
	}

	if _, ok := b.Int().SetString(s, 10); !ok {
		return fmt.Errorf("invalid decimal integer %q", s)
	}
	return nil
}

func (BigInt) GormDataType() string {
	return "varchar(78)"
}

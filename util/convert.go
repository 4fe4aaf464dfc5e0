package util

import (
	"github.com/corvidb/corvid/storage/disk"
	"github.com/vmihailenco/msgpack/v5"
)

// ToByteSlice msgpack-encodes obj into a PageSize-capacity buffer, for
// page-resident structures (index pages) that round-trip through the
// buffer pool's raw byte slices.
func ToByteSlice[T any](obj T) ([]byte, error) {
	res := make([]byte, disk.PageSize)

	data, err := msgpack.Marshal(obj)
	if err != nil {
		return nil, err
	}
	if len(data) > len(res) {
		return nil, NewError(KindInvariantViolation, "encoded value does not fit in a page")
	}
	copy(res, data)
	return res, nil
}

// ToStruct decodes a msgpack-encoded T out of data.
func ToStruct[T any](data []byte) (T, error) {
	var res T
	if err := msgpack.Unmarshal(data, &res); err != nil {
		return res, err
	}
	return res, nil
}

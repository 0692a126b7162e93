package store

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Encode a value stored in the key-value store
func Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// Decode a value read from the key-value store
func Decode(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// GetJSON reads and decodes the value at key
func GetJSON(r Reader, key []byte, v interface{}) error {
	data, err := r.Get(key)
	if err != nil {
		return err
	}
	return Decode(data, v)
}

// SetJSON encodes and writes a value at key
func SetJSON(txn Txn, key []byte, v interface{}) error {
	data, err := Encode(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

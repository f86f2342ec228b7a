package utils

func Uint32ToBytes(n uint32, size int) []byte {
	if size < 1 || size > 4 {
		panic("size must be 1, 2, 3, or 4")
	}
	b := make([]byte, size)
	for i := 0; i < size; i++ {
		shift := uint((size - 1 - i) * 8)
		b[i] = byte(n >> shift)
	}
	return b
}

// Int16ToBytes は符号付き16ビット値をビッグエンディアン2バイトに変換する
func Int16ToBytes(n int16) []byte {
	return []byte{byte(uint16(n) >> 8), byte(uint16(n))}
}

// BytesToInt16 は2バイトのビッグエンディアン値を符号付き16ビット値として読む
func BytesToInt16(b []byte) (int16, bool) {
	if len(b) != 2 {
		return 0, false
	}
	return int16(uint16(b[0])<<8 | uint16(b[1])), true
}

func FlattenBytes(chunks [][]byte) []byte {
	// 合計サイズを計算
	totalSize := 0
	for _, chunk := range chunks {
		totalSize += len(chunk)
	}

	result := make([]byte, 0, totalSize)
	for _, chunk := range chunks {
		result = append(result, chunk...)
	}

	return result
}

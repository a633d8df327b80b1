package crypto

import "testing"

func BenchmarkNewGCCrypt(b *testing.B) {
	b.ReportAllocs()
	for i := range b.N {
		_ = NewGCCrypt(uint32(i))
	}
}

func BenchmarkNewPCCrypt(b *testing.B) {
	b.ReportAllocs()
	for i := range b.N {
		_ = NewPCCrypt(uint32(i))
	}
}

func BenchmarkCrypt(b *testing.B) {
	for _, v := range []Variant{VariantGameCube, VariantPC} {
		b.Run(v.String(), func(b *testing.B) {
			c := NewCipher(v, 0x12345678)
			buf := make([]byte, 1460)
			b.SetBytes(int64(len(buf)))
			b.ReportAllocs()
			b.ResetTimer()
			for range b.N {
				if err := c.Crypt(buf); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

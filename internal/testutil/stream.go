package testutil

import (
	"testing"

	"github.com/udisondev/psotrace/internal/constants"
	"github.com/udisondev/psotrace/internal/crypto"
	"github.com/udisondev/psotrace/internal/protocol"
)

// Msg собирает сообщение с корректным Size по телу.
func Msg(id uint8, body ...byte) protocol.Message {
	return protocol.Message{
		Header: protocol.Header{ID: id, Size: uint16(constants.MessageHeaderSize + len(body))},
		Body:   body,
	}
}

// Filled возвращает сообщение с телом из n байт, заполненных значением fill.
func Filled(id uint8, n int, fill byte) protocol.Message {
	body := make([]byte, n)
	for i := range body {
		body[i] = fill
	}
	return Msg(id, body...)
}

// Wire кодирует сообщения подряд, как они идут в TCP потоке.
func Wire(msgs ...protocol.Message) []byte {
	var out []byte
	for _, m := range msgs {
		out = append(out, m.Bytes()...)
	}
	return out
}

// Sealer шифрует исходящий поток одного направления так, как это делает
// отправитель. Состояние шифра продолжается между вызовами Seal.
type Sealer struct {
	cipher crypto.Cipher
}

// NewSealer создаёт шифратор направления для seed.
func NewSealer(v crypto.Variant, seed uint32) *Sealer {
	return &Sealer{cipher: crypto.NewCipher(v, seed)}
}

// Seal кодирует и шифрует сообщения. Общая длина должна быть кратна 4.
func (s *Sealer) Seal(t testing.TB, msgs ...protocol.Message) []byte {
	t.Helper()

	out := Wire(msgs...)
	if err := s.cipher.Crypt(out); err != nil {
		t.Fatalf("sealing %d bytes: %v", len(out), err)
	}
	return out
}

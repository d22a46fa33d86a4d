package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// WorkerID — непрозрачный идентификатор подключённого worker'а.
// Уникален среди зарегистрированных в данный момент worker'ов.
type WorkerID string

// String возвращает строковое представление WorkerID.
func (id WorkerID) String() string {
	return string(id)
}

// OperationID — идентификатор одной запланированной operation.
// Не меняется при requeue и переназначении на другой worker.
type OperationID string

// String возвращает строковое представление OperationID.
func (id OperationID) String() string {
	return string(id)
}

// NewOperationID генерирует новый OperationID.
func NewOperationID() OperationID {
	return OperationID(uuid.NewString())
}

// WorkerTimestamp — время в секундах от Unix epoch.
// Используется для keep-alive и времени подключения worker'а.
type WorkerTimestamp uint64

// TimestampFrom конвертирует time.Time в WorkerTimestamp.
func TimestampFrom(t time.Time) WorkerTimestamp {
	if t.Unix() < 0 {
		return 0
	}
	return WorkerTimestamp(t.Unix())
}

// Digest — content-addressable ссылка (hash + размер в байтах).
type Digest struct {
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// String возвращает digest в формате "hash-size".
func (d Digest) String() string {
	return fmt.Sprintf("%s-%d", d.Hash, d.Size)
}

// IsZero возвращает true, если digest не задан.
func (d Digest) IsZero() bool {
	return d.Hash == "" && d.Size == 0
}

// ParseDigest парсит digest из формата "hash-size" или "hash/size".
func ParseDigest(s string) (Digest, error) {
	sep := strings.LastIndexAny(s, "-/")
	if sep <= 0 || sep == len(s)-1 {
		return Digest{}, fmt.Errorf("invalid digest %q: expected hash-size", s)
	}

	size, err := strconv.ParseInt(s[sep+1:], 10, 64)
	if err != nil || size < 0 {
		return Digest{}, fmt.Errorf("invalid digest size in %q", s)
	}

	return Digest{Hash: s[:sep], Size: size}, nil
}

package domain

import "time"

// Request — restore: набор удалённых файлов под одним guid.
//
// Request создаётся Orchestrator'ом после успешного запроса restore
// у удалённого сервиса. Авторитетная копия живёт в tracker store,
// в памяти хранится только кэш, который перечитывается перед каждым решением.
type Request struct {
	// ID — первичный ключ в tracker store.
	ID int64 `db:"id" json:"id"`

	// GUID — идентификатор restore, выданный удалённым сервисом.
	GUID string `db:"guid" json:"guid"`

	// Status — текущий статус.
	Status RequestStatus `db:"status" json:"status"`

	// Size — суммарный размер файлов в байтах.
	// nil, пока файлы не перечислены на FTP.
	Size *int64 `db:"size" json:"size,omitempty"`

	// Details — человекочитаемое пояснение к статусу.
	Details string `db:"details" json:"details"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// KnownSize возвращает размер restore или 0, если он ещё неизвестен.
func (r *Request) KnownSize() int64 {
	if r.Size == nil {
		return 0
	}
	return *r.Size
}

// IsFinished возвращает true, если restore в терминальном статусе.
func (r *Request) IsFinished() bool {
	return r.Status.IsTerminal()
}

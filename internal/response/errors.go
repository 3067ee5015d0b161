package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrUnknownAction  ErrCode = "UNKNOWN_ACTION"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Exam session ──────────────────────────────────────────────────
	ErrExamNotFound         ErrCode = "EXAM_NOT_FOUND"
	ErrExamInvalid          ErrCode = "EXAM_INVALID"
	ErrExamLoadFailed       ErrCode = "EXAM_LOAD_FAILED"
	ErrExamNotLoaded        ErrCode = "EXAM_NOT_LOADED"
	ErrSessionStarted       ErrCode = "SESSION_ALREADY_STARTED"
	ErrSessionNotActive     ErrCode = "SESSION_NOT_IN_PROGRESS"
	ErrTimeUp               ErrCode = "TIME_UP"
	ErrQuestionOutOfRange   ErrCode = "QUESTION_OUT_OF_RANGE"
	ErrSubmissionInProgress ErrCode = "SUBMISSION_IN_PROGRESS"
	ErrAlreadySubmitted     ErrCode = "ALREADY_SUBMITTED"
	ErrSubmitFailed         ErrCode = "SUBMIT_FAILED"
	ErrSessionNotCompleted  ErrCode = "SESSION_NOT_COMPLETED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrTokenExpired:
		return "Token autentikasi telah kedaluwarsa."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Periksa kembali data yang dikirim."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Format payload tidak valid."
	case ErrUnknownAction:
		return "Aksi tidak dikenali."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Data tidak ditemukan."

	// ─── Exam session ──────────────────────────────────────────────────
	case ErrExamNotFound:
		return "Ujian tidak ditemukan."
	case ErrExamInvalid:
		return "Ujian tidak dapat dimulai karena data soal tidak valid."
	case ErrExamLoadFailed:
		return "Gagal memuat ujian. Silakan coba lagi."
	case ErrExamNotLoaded:
		return "Ujian belum dimuat."
	case ErrSessionStarted:
		return "Ujian sudah dimulai."
	case ErrSessionNotActive:
		return "Ujian tidak sedang berlangsung."
	case ErrTimeUp:
		return "Waktu ujian telah habis."
	case ErrQuestionOutOfRange:
		return "Nomor soal tidak valid."
	case ErrSubmissionInProgress:
		return "Jawaban sedang dikirim."
	case ErrAlreadySubmitted:
		return "Jawaban sudah dikirim."
	case ErrSubmitFailed:
		return "Gagal menyimpan jawaban. Silakan kirim ulang."
	case ErrSessionNotCompleted:
		return "Ujian belum selesai."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan pada server."

	default:
		return "Terjadi kesalahan."
	}
}

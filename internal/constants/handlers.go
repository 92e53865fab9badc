package constants

// Enrollment upload constants
const (
	// MaxEnrollImages is the maximum number of images in one enrollment upload
	MaxEnrollImages = 20

	// MultipartOverhead is the room left for multipart headers and form fields on
	// top of the uploaded file bytes
	MultipartOverhead = 1 << 20
)

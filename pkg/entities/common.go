package entities

// Pagination meta data
type PaginationMetaData struct {
	Size     int    `json:"size"`
	PageSize int    `json:"page_size,omitempty"`
	Next     string `json:"next"`
	Prev     string `json:"prev"`
}

// Common response variable with Pagination
type Response struct {
	Success            bool                `json:"success"`
	Message            string              `json:"message,omitempty"`
	PaginationMetaData *PaginationMetaData `json:"pagination_meta_data,omitempty"`
	Data               interface{}         `json:"data,omitempty"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type Pagination struct {
	PageSize  int
	NextToken []byte
}

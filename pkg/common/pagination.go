package common

import "math"

// PaginationResult is the list envelope for transaction queries. Page numbers
// are 1-based; a zero NextPage or PrevPage means there is none.
type PaginationResult struct {
	Message     string      `json:"message"`
	Data        interface{} `json:"data"`
	Count       int64       `json:"count"`
	CurrentPage int         `json:"currentPage"`
	NextPage    int         `json:"nextPage"`
	PrevPage    int         `json:"prevPage"`
	LastPage    int         `json:"lastPage"`
}

// PaginateResponse wraps one page of data with the navigation fields for total rows.
func PaginateResponse(data interface{}, total int64, page, limit int, message string) PaginationResult {
	if message == "" {
		message = "success"
	}
	if page < 1 {
		page = 1
	}

	res := PaginationResult{
		Message:     message,
		Data:        data,
		Count:       total,
		CurrentPage: page,
		LastPage:    lastPage(total, limit),
	}
	if page < res.LastPage {
		res.NextPage = page + 1
	}
	if page > 1 {
		res.PrevPage = page - 1
	}
	return res
}

func lastPage(total int64, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(limit)))
}

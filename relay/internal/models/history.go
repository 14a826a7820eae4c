package models

// PredictionPage is one page of prediction history.
type PredictionPage struct {
	Data       []*PredictionRecord `json:"data"`
	Pagination Pagination          `json:"pagination"`
}

// Pagination mirrors the query parameters used to build a page.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

package model

type User struct {
	ID           string `json:"id"`
	CompanyID    string `json:"company_id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Ctime        int64  `json:"ctime"`
}

type Company struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Ctime int64  `json:"ctime"`
}

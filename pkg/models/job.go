package models

type Job struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	UserIDs []string `json:"user_ids"`
}

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

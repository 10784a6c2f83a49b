package domain

// User — проекция внешнего account store; ядро её не изменяет.
type User struct {
	ID          int64   `db:"id"`
	DisplayName *string `db:"display_name"`
	AvatarURL   *string `db:"avatar_url"`
}

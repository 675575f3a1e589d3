package account

type createAccountRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required,oneof=USER MERCHANT"`
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=ACTIVE BLOCKED"`
	Pin    string `json:"pin" validate:"required,pin"`
}

type topUpRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Pin    string `json:"pin" validate:"required,pin"`
}

type deactivateRequest struct {
	Pin string `json:"pin" validate:"required,pin"`
}

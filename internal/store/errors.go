package store

import "errors"

var (
	// ErrOptimisticLock is returned by SaveGame/SaveVoucher/SaveBrand
	// when the row's version column moved since it was read.
	ErrOptimisticLock = errors.New("optimistic lock conflict")
	ErrGameNotFound    = errors.New("game not found")
	ErrVoucherNotFound = errors.New("voucher not found")
	ErrBrandNotFound   = errors.New("brand not found")
	ErrUserNotFound    = errors.New("user not found")
)

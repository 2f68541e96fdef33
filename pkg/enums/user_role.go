package enums

import "fmt"

// UserRole is the account type of a user.
type UserRole string

const (
	UserRoleUser   UserRole = "user"
	UserRoleVendor UserRole = "vendor"
	UserRoleAdmin  UserRole = "admin"
)

var validUserRoles = []UserRole{
	UserRoleUser,
	UserRoleVendor,
	UserRoleAdmin,
}

func (r UserRole) String() string {
	return string(r)
}

func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// CanSell reports whether the role may own items and coupons.
func (r UserRole) CanSell() bool {
	return r == UserRoleVendor || r == UserRoleAdmin
}

func ParseUserRole(value string) (UserRole, error) {
	for _, candidate := range validUserRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}

// VendorRequestStatus tracks an application to become a vendor.
type VendorRequestStatus string

const (
	VendorRequestStatusPending  VendorRequestStatus = "pending"
	VendorRequestStatusApproved VendorRequestStatus = "approved"
	VendorRequestStatusRejected VendorRequestStatus = "rejected"
)

var validVendorRequestStatuses = []VendorRequestStatus{
	VendorRequestStatusPending,
	VendorRequestStatusApproved,
	VendorRequestStatusRejected,
}

func (s VendorRequestStatus) IsValid() bool {
	for _, candidate := range validVendorRequestStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

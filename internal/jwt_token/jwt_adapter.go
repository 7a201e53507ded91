package jwttoken

import (
	"rollcall/internal/platform/middleware"
	id "rollcall/pkg/domain"
)

func ToMiddlewareClaims(claims *Claims) (*middleware.JWTClaims, error) {
	staffID, err := id.ParseStaffID(claims.StaffID)
	if err != nil {
		return nil, err
	}
	out := &middleware.JWTClaims{StaffID: staffID, JTI: claims.ID}
	if claims.OrganisationID != "" {
		orgID, err := id.ParseOrganisationID(claims.OrganisationID)
		if err != nil {
			return nil, err
		}
		out.OrganisationID = &orgID
	}
	return out, nil
}

type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims)
}

// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

// # Authentication Constraints

const (
	// NameMinLength and NameMaxLength bound the display name on registration.
	NameMinLength = 2
	NameMaxLength = 50

	// PasswordMaxLength caps submitted passwords; bcrypt ignores bytes past 72.
	PasswordMaxLength = 72

	// EmailMaxLength follows the RFC 5321 path limit.
	EmailMaxLength = 254
)

// # Resource Names

// Resource labels used in client-facing NotFound/Conflict messages.
const (
	ResourceUser         = "User"
	ResourceRefreshToken = "Refresh token"
)

// # Field Identifiers

// Field names for validation errors and JSON payloads in the authentication domain.
const (
	FieldName                  = "name"
	FieldEmail                 = "email"
	FieldMobile                = "mobile"
	FieldPassword              = "password"
	FieldPassword1             = "password1"
	FieldPassword2             = "password2"
	FieldRefreshToken          = "refresh_token"
	FieldAccessToken           = "access_token"
	FieldTokenType             = "token_type"
	FieldExpiresIn             = "expires_in"
	FieldRefreshTokenExpiresIn = "refresh_token_expires_in"
	FieldUserID                = "user_id"
	FieldMessage               = "message"
)

// Conflict reasons reported in the details of a registration conflict.
const (
	ReasonEmailTaken  = "email_taken"
	ReasonMobileTaken = "mobile_taken"
)

package domain

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// RegistrationStep é o estado explícito do fluxo de cadastro.
type RegistrationStep string

const (
	StepAwaitingFirstName RegistrationStep = "awaiting_first_name"
	StepAwaitingLastName  RegistrationStep = "awaiting_last_name"
	StepAwaitingPhone     RegistrationStep = "awaiting_phone"
	StepAwaitingLocation  RegistrationStep = "awaiting_location"
	StepComplete          RegistrationStep = "complete"
)

// Profile são os dados coletados pelo cadastro.
type Profile struct {
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	Phone      string     `json:"phone"`
	LocationID LocationID `json:"location_id"`
}

// Registration é o estado persistido junto com os dados parciais.
type Registration struct {
	Step    RegistrationStep `json:"step"`
	Profile Profile          `json:"profile"`
}

type EffectKind string

const (
	EffectPromptLastName EffectKind = "prompt_last_name"
	EffectPromptPhone    EffectKind = "prompt_phone"
	EffectPromptLocation EffectKind = "prompt_location"
	EffectSaveProfile    EffectKind = "save_profile"
)

// Effect é o que o chamador deve executar depois de uma transição.
type Effect struct {
	Kind    EffectKind `json:"kind"`
	Profile *Profile   `json:"profile,omitempty"`
}

// UserStore grava o perfil ao fim do cadastro (upsert por usuário).
type UserStore interface {
	UpdateProfile(ctx context.Context, user UserID, p Profile) error
}

const maxNameRunes = 255

var phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

func NewRegistration() Registration {
	return Registration{Step: StepAwaitingFirstName}
}

// Transition é a função pura do cadastro: (estado, entrada) -> (próximo estado, efeitos).
// Entrada inválida mantém o estado e devolve ErrInvalidArgument.
func Transition(r Registration, input string) (Registration, []Effect, error) {
	input = strings.TrimSpace(input)
	next := r

	switch r.Step {
	case StepAwaitingFirstName:
		if err := validName("first name", input); err != nil {
			return r, nil, err
		}
		next.Profile.FirstName = input
		next.Step = StepAwaitingLastName
		return next, []Effect{{Kind: EffectPromptLastName}}, nil

	case StepAwaitingLastName:
		if err := validName("last name", input); err != nil {
			return r, nil, err
		}
		next.Profile.LastName = input
		next.Step = StepAwaitingPhone
		return next, []Effect{{Kind: EffectPromptPhone}}, nil

	case StepAwaitingPhone:
		phone := normalizePhone(input)
		if !phonePattern.MatchString(phone) {
			return r, nil, invalidf("phone %q", input)
		}
		next.Profile.Phone = phone
		next.Step = StepAwaitingLocation
		return next, []Effect{{Kind: EffectPromptLocation}}, nil

	case StepAwaitingLocation:
		id, err := strconv.ParseInt(input, 10, 64)
		if err != nil || id <= 0 {
			return r, nil, invalidf("location id %q", input)
		}
		next.Profile.LocationID = LocationID(id)
		next.Step = StepComplete
		p := next.Profile
		return next, []Effect{{Kind: EffectSaveProfile, Profile: &p}}, nil

	case StepComplete:
		return r, nil, invalidf("registration already complete")
	}
	return r, nil, invalidf("unknown registration step %q", r.Step)
}

func validName(field, v string) error {
	if v == "" {
		return invalidf("%s is empty", field)
	}
	if utf8.RuneCountInString(v) > maxNameRunes {
		return invalidf("%s longer than %d characters", field, maxNameRunes)
	}
	return nil
}

func normalizePhone(s string) string {
	return strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(s)
}

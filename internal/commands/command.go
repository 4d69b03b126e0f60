package commands

import (
	"fmt"
	"strings"
)

type Type string

const (
	TypeDone     Type = "done"
	TypeDefer    Type = "defer"
	TypeDelete   Type = "delete"
	TypeGenerate Type = "generate"
	TypePurge    Type = "purge"
	TypeShow     Type = "show"
)

type ErrorCode string

const (
	ErrCodeEmptyInput      ErrorCode = "empty_input"
	ErrCodeUnknownCommand  ErrorCode = "unknown_command"
	ErrCodeInvalidArgument ErrorCode = "invalid_argument"
	ErrCodeHandlerMissing  ErrorCode = "handler_missing"
)

type CommandError struct {
	Code    ErrorCode
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type Subject string

const (
	SubjectQueue  Subject = "queue"
	SubjectLedger Subject = "ledger"
)

type DeleteArgs struct {
	PrescriptionID string
}

type ShowArgs struct {
	Subject Subject
}

type Command struct {
	Type   Type
	Raw    string
	Delete *DeleteArgs
	Show   *ShowArgs
}

var aliases = map[string]Type{
	"take":     TypeDone,
	"taken":    TypeDone,
	"complete": TypeDone,
	"snooze":   TypeDefer,
	"later":    TypeDefer,
	"rm":       TypeDelete,
	"regen":    TypeGenerate,
	"refresh":  TypeGenerate,
	"gc":       TypePurge,
}

func Parse(input string) (Command, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}
	if strings.HasPrefix(raw, "/") {
		raw = strings.TrimSpace(strings.TrimPrefix(raw, "/"))
	}
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}

	parts := strings.Fields(raw)
	head := strings.ToLower(parts[0])
	args := parts[1:]
	typ := Type(head)
	if alias, ok := aliases[head]; ok {
		typ = alias
	}

	switch typ {
	case TypeDone, TypeDefer, TypeGenerate, TypePurge:
		if len(args) > 0 {
			return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("%s takes no arguments", typ)}
		}
		return Command{Type: typ, Raw: input}, nil
	case TypeDelete:
		return parseDelete(input, args)
	case TypeShow:
		return parseShow(input, args)
	default:
		return Command{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unsupported command: %s", head)}
	}
}

func parseDelete(raw string, args []string) (Command, error) {
	if len(args) != 1 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "delete requires one prescription id"}
	}
	return Command{Type: TypeDelete, Raw: raw, Delete: &DeleteArgs{PrescriptionID: args[0]}}, nil
}

func parseShow(raw string, args []string) (Command, error) {
	if len(args) == 0 {
		return Command{Type: TypeShow, Raw: raw, Show: &ShowArgs{Subject: SubjectQueue}}, nil
	}
	switch subject := Subject(strings.ToLower(args[0])); subject {
	case SubjectQueue, SubjectLedger:
		return Command{Type: TypeShow, Raw: raw, Show: &ShowArgs{Subject: subject}}, nil
	default:
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("show expects queue or ledger, got %s", args[0])}
	}
}

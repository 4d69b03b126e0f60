package commands

import "fmt"

type Result struct {
	Message string
}

type Handlers struct {
	Done     func() (Result, error)
	Defer    func() (Result, error)
	Delete   func(DeleteArgs) (Result, error)
	Generate func() (Result, error)
	Purge    func() (Result, error)
	Show     func(ShowArgs) (Result, error)
}

func Execute(cmd Command, handlers Handlers) (Result, error) {
	switch cmd.Type {
	case TypeDone:
		return call(handlers.Done, cmd.Type)
	case TypeDefer:
		return call(handlers.Defer, cmd.Type)
	case TypeGenerate:
		return call(handlers.Generate, cmd.Type)
	case TypePurge:
		return call(handlers.Purge, cmd.Type)
	case TypeDelete:
		if handlers.Delete == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Delete(*cmd.Delete)
	case TypeShow:
		if handlers.Show == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Show(*cmd.Show)
	default:
		return Result{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unknown command type: %s", cmd.Type)}
	}
}

func call(fn func() (Result, error), typ Type) (Result, error) {
	if fn == nil {
		return Result{}, missing(typ)
	}
	return fn()
}

func missing(typ Type) error {
	return &CommandError{Code: ErrCodeHandlerMissing, Message: fmt.Sprintf("%s handler not configured", typ)}
}

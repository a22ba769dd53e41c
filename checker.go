package modkit

// Checker evaluates authorization rules for one actor. It performs no I/O: every
// method decides from the account snapshots it is given.
type Checker struct {
	actor *Account
}

// NewChecker creates a new Checker for an actor.
func NewChecker(actor *Account) *Checker {
	return &Checker{actor: actor}
}

// Actor returns the account this checker is for.
func (c *Checker) Actor() *Account {
	return c.actor
}

// IsModerator reports whether the actor is at least a Moderator.
func (c *Checker) IsModerator() bool {
	return c.actor.Role.AtLeast(RoleModerator)
}

// IsCreator reports whether the actor holds the Creator role.
func (c *Checker) IsCreator() bool {
	return c.actor.Role == RoleCreator
}

// IsBlocked reports whether the actor is blocked.
func (c *Checker) IsBlocked() bool {
	return c.actor.Role == RoleBlocked
}

// CanChangeNickname allows renaming oneself, or anyone when Moderator or above.
func (c *Checker) CanChangeNickname(target *Account) error {
	if c.actor.ID == target.ID || c.IsModerator() {
		return nil
	}
	return NewError(ErrForbidden, "only moderators can rename other accounts")
}

// CanBlock requires a Moderator acting on a plain User.
func (c *Checker) CanBlock(target *Account) error {
	if !c.IsModerator() {
		return NewError(ErrForbidden, "moderator role required")
	}
	if target.Role != RoleUser {
		return NewError(ErrInvalidRole, "only users can be blocked")
	}
	return nil
}

// CanUnblock requires a Moderator acting on a Blocked account.
func (c *Checker) CanUnblock(target *Account) error {
	if !c.IsModerator() {
		return NewError(ErrForbidden, "moderator role required")
	}
	if target.Role != RoleBlocked {
		return NewError(ErrInvalidRole, "account is not blocked")
	}
	return nil
}

// CanPromote requires the Creator acting on a plain User.
func (c *Checker) CanPromote(target *Account) error {
	if !c.IsCreator() {
		return NewError(ErrForbidden, "creator role required")
	}
	if target.Role != RoleUser {
		return NewError(ErrInvalidRole, "only users can be promoted")
	}
	return nil
}

// CanDemote requires the Creator acting on a Moderator.
func (c *Checker) CanDemote(target *Account) error {
	if !c.IsCreator() {
		return NewError(ErrForbidden, "creator role required")
	}
	if target.Role != RoleModerator {
		return NewError(ErrInvalidRole, "only moderators can be demoted")
	}
	return nil
}

// CanWarn requires a Moderator acting on an account ranked User or below.
func (c *Checker) CanWarn(target *Account) error {
	if !c.IsModerator() {
		return NewError(ErrForbidden, "moderator role required")
	}
	if !target.Role.AtMost(RoleUser) {
		return NewError(ErrInvalidRole, "moderators cannot be warned")
	}
	return nil
}

// CanUnWarn is CanWarn plus a positive warning count.
func (c *Checker) CanUnWarn(target *Account) error {
	if err := c.CanWarn(target); err != nil {
		return err
	}
	if target.Warnings <= 0 {
		return NewError(ErrNotAllowed, "account has no warnings")
	}
	return nil
}

// CanCreateCommand allows any account that is not blocked.
func (c *Checker) CanCreateCommand() error {
	if c.IsBlocked() {
		return NewError(ErrForbidden, "blocked accounts cannot create commands")
	}
	return nil
}

// CanEditCommand allows the command's creator or a Moderator, never a blocked actor.
func (c *Checker) CanEditCommand(cmd *Command) error {
	if c.IsBlocked() {
		return NewError(ErrForbidden, "blocked accounts cannot edit commands")
	}
	if c.actor.ID != cmd.CreatorID && !c.IsModerator() {
		return NewError(ErrForbidden, "only the creator or a moderator can edit this command")
	}
	return nil
}

// CanDeleteCommand allows the command's creator or a Moderator.
func (c *Checker) CanDeleteCommand(cmd *Command) error {
	if c.actor.ID != cmd.CreatorID && !c.IsModerator() {
		return NewError(ErrForbidden, "only the creator or a moderator can delete this command")
	}
	return nil
}

// CanUseCommand allows any account that is not blocked.
func (c *Checker) CanUseCommand() error {
	if c.IsBlocked() {
		return NewError(ErrForbidden, "blocked accounts cannot use commands")
	}
	return nil
}

package app

import (
	"context"
	"errors"

	"choreline/internal/domain"
)

// SeedPassword is the password given to every seeded user.
const SeedPassword = "password123"

var seedUsers = []string{"user1", "user2", "user3"}

var seedTasks = []struct{ Name, Description string }{
	{"Kitchen Cleaning", "Clean the kitchen surfaces and floor."},
	{"Bathroom Cleaning", "Clean the toilet, shower, and sink."},
	{"Living Room Tidying", "Tidy up the living room area."},
	{"Trash Duty", "Take out the trash and recycling."},
	{"Vacuuming", "Vacuum all carpets and rugs."},
	{"Dishwashing", "Wash all dirty dishes."},
}

type SeedResult struct {
	Users       []domain.User
	Tasks       []domain.Task
	Assignments []domain.Assignment
}

// Seed loads a small demo household: three users, six chores, and each chore
// assigned round-robin. Rows that already exist are skipped.
func (a *App) Seed(ctx context.Context) (SeedResult, error) {
	var res SeedResult
	for _, name := range seedUsers {
		u, err := a.Credentials.Register(ctx, name, SeedPassword)
		if errors.Is(err, domain.ErrDuplicateUsername) {
			continue
		}
		if err != nil {
			return res, err
		}
		res.Users = append(res.Users, u)
	}
	for _, st := range seedTasks {
		t, err := a.Engine.CreateTask(ctx, st.Name, st.Description, 0)
		if errors.Is(err, domain.ErrDuplicateTaskName) {
			continue
		}
		if err != nil {
			return res, err
		}
		res.Tasks = append(res.Tasks, t)
	}
	for i, t := range res.Tasks {
		if len(res.Users) == 0 {
			break
		}
		asg, err := a.Engine.AssignTask(ctx, t.ID, res.Users[i%len(res.Users)].ID)
		if errors.Is(err, domain.ErrTaskAlreadyAssigned) {
			continue
		}
		if err != nil {
			return res, err
		}
		res.Assignments = append(res.Assignments, asg)
	}
	return res, nil
}

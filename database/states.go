package database

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

const (
	LastChainIndexState     string = "last_chain_block"
	LastDatabaseIndexState  string = "last_database_block"
	FirstDatabaseIndexState string = "first_database_block"
)

var (
	StateNames = []string{
		FirstDatabaseIndexState,
		LastDatabaseIndexState,
		LastChainIndexState,
	}
	// States captures the state of the DB giving guaranties which
	// blocks were indexed.
	States = NewStates()
)

type DBStates struct {
	States map[string]*State
	sync.Mutex
}

func NewStates() *DBStates {
	states := &DBStates{}
	states.States = make(map[string]*State)

	return states
}

func initStates(db *gorm.DB) error {
	for _, name := range StateNames {
		var state State
		err := db.Where(&State{Name: name}).First(&state).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		s := &State{Name: name}
		s.UpdateIndex(0, 0)
		if err := db.Create(s).Error; err != nil {
			return err
		}
	}

	return nil
}

func GetDBStates(db *gorm.DB) (*DBStates, error) {
	States.Mutex.Lock()
	defer States.Mutex.Unlock()

	for _, name := range StateNames {
		var state State
		err := db.Where(&State{Name: name}).First(&state).Error
		if err != nil {
			return nil, fmt.Errorf("GetDBStates: %w", err)
		}
		States.States[name] = &state
	}

	return States, nil
}

func (states *DBStates) UpdateIndex(name string, newIndex, blockTimestamp uint64) {
	states.States[name].UpdateIndex(newIndex, blockTimestamp)
}

func (states *DBStates) UpdateDB(db *gorm.DB, name string) error {
	return db.Save(states.States[name]).Error
}

func (states *DBStates) Update(db *gorm.DB, name string, newIndex, blockTimestamp uint64) error {
	states.UpdateIndex(name, newIndex, blockTimestamp)
	err := states.UpdateDB(db, name)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}

	return nil
}

// UpdateAtStart reconciles the configured start block with the blocks
// already committed to the DB and returns the block range to index next.
// If the configured start falls inside the committed range, indexing
// resumes after the last committed block; otherwise a break in the saved
// history is created and the first-block guarantee is moved forward.
func (states *DBStates) UpdateAtStart(db *gorm.DB, startIndex, startBlockTimestamp,
	lastChainIndex, lastBlockTimestamp, stopIndex uint64) (uint64, uint64, error) {
	var err error
	if startIndex <= states.States[LastDatabaseIndexState].Index &&
		startIndex >= states.States[FirstDatabaseIndexState].Index {
		startIndex = states.States[LastDatabaseIndexState].Index + 1
	} else {
		err = states.Update(db, FirstDatabaseIndexState, startIndex, startBlockTimestamp)
		if err != nil {
			return 0, 0, fmt.Errorf("UpdateAtStart: %w", err)
		}
	}

	err = states.Update(db, LastChainIndexState, lastChainIndex, lastBlockTimestamp)
	if err != nil {
		return 0, 0, fmt.Errorf("UpdateAtStart: %w", err)
	}

	lastIndex := min(stopIndex, lastChainIndex)

	return startIndex, lastIndex, nil
}

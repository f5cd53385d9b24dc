package system

import (
	"math"

	"github.com/realmrelay/server/internal/core/event"
	"github.com/realmrelay/server/internal/handler"
	"github.com/realmrelay/server/internal/net/message"
	"github.com/realmrelay/server/internal/scripting"
	"github.com/realmrelay/server/internal/world"
	"go.uber.org/zap"
)

// CombatResolver prices and delivers attack hits. HandleAttack calls
// Resolve while the attack frame is being dispatched, so hit detection sees
// the registry exactly as the messages before it left it. Target health is
// never touched here: the target's client applies the damage it is told
// about.
type CombatResolver struct {
	deps  *handler.Deps
	rules *scripting.Engine
}

func NewCombatResolver(deps *handler.Deps, rules *scripting.Engine) *CombatResolver {
	return &CombatResolver{deps: deps, rules: rules}
}

// Resolve hits every other player within the attacker's class range and in
// the half-space the attacker faces. It implements handler.Combat.
func (s *CombatResolver) Resolve(req handler.AttackRequest) {
	players := s.deps.World.Players
	attacker, ok := players.GetPlayer(req.AttackerID)
	if !ok {
		return
	}
	s.deps.Metrics.AttacksResolved.Add(1)

	ch := attacker.Character
	reach := s.rules.AttackRange(ch.Class)
	fx, fz := math.Sin(req.Rotation), math.Cos(req.Rotation)

	var (
		damage int
		priced bool
	)
	for _, id := range players.IDs() {
		if id == req.AttackerID {
			continue
		}
		target, ok := players.GetPlayer(id)
		if !ok {
			continue
		}
		tp := target.Character.Position
		if world.PlanarDistance(req.Position, tp) > reach {
			continue
		}
		dx, dz := tp.X-req.Position.X, tp.Z-req.Position.Z
		if fx*dx+fz*dz <= 0 {
			continue
		}

		if !priced {
			priced = true
			damage = s.rules.CalcDamage(scripting.DamageContext{
				Class:        ch.Class,
				Level:        ch.Stats.Level,
				Strength:     ch.Stats.Strength,
				Intelligence: ch.Stats.Intelligence,
				Dexterity:    ch.Stats.Dexterity,
			})
		}
		s.deps.Metrics.Hits.Add(1)
		handler.SendToPlayers(message.DamagePlayer{
			TargetID:   id,
			Damage:     damage,
			AttackerID: req.AttackerID,
		}, []string{id, req.AttackerID}, s.deps)
		event.Emit(s.deps.Bus, event.DamageDealt{
			AttackerID: req.AttackerID,
			TargetID:   id,
			Damage:     damage,
		})
		s.deps.Log.Debug("attack hit",
			zap.String("attacker", req.AttackerID),
			zap.String("target", id),
			zap.Int("damage", damage),
		)
	}
}

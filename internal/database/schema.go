package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the tables used by the reservation store.  Statements are
// idempotent so Migrate can run on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS halls (
		id         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		name       VARCHAR(120) NOT NULL,
		seat_rows  INT UNSIGNED NOT NULL,
		seat_cols  INT UNSIGNED NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS seats (
		id          BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		hall_id     BIGINT UNSIGNED NOT NULL,
		row_label   VARCHAR(8) NOT NULL,
		seat_number INT UNSIGNED NOT NULL,
		UNIQUE KEY uq_seat_position (hall_id, row_label, seat_number),
		CONSTRAINT fk_seats_hall FOREIGN KEY (hall_id) REFERENCES halls(id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS shows (
		id               BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		hall_id          BIGINT UNSIGNED NOT NULL,
		title            VARCHAR(200) NOT NULL,
		starts_at        DATETIME NOT NULL,
		base_price_cents INT UNSIGNED NOT NULL,
		created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT fk_shows_hall FOREIGN KEY (hall_id) REFERENCES halls(id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS show_seats (
		show_id     BIGINT UNSIGNED NOT NULL,
		seat_id     BIGINT UNSIGNED NOT NULL,
		status      ENUM('available','held','booked') NOT NULL DEFAULT 'available',
		price_cents INT UNSIGNED NOT NULL,
		version     INT UNSIGNED NOT NULL DEFAULT 0,
		updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (show_id, seat_id),
		CONSTRAINT fk_show_seats_show FOREIGN KEY (show_id) REFERENCES shows(id),
		CONSTRAINT fk_show_seats_seat FOREIGN KEY (seat_id) REFERENCES seats(id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS seat_holds (
		hold_token CHAR(36) PRIMARY KEY,
		show_id    BIGINT UNSIGNED NOT NULL,
		user_id    BIGINT UNSIGNED NOT NULL,
		state      ENUM('active','committed','released','expired') NOT NULL DEFAULT 'active',
		created_at DATETIME(3) NOT NULL,
		expires_at DATETIME(3) NOT NULL,
		KEY idx_seat_holds_expiry (state, expires_at),
		KEY idx_seat_holds_show (show_id, state),
		CONSTRAINT fk_seat_holds_show FOREIGN KEY (show_id) REFERENCES shows(id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS seat_hold_seats (
		hold_token CHAR(36) NOT NULL,
		seat_id    BIGINT UNSIGNED NOT NULL,
		PRIMARY KEY (hold_token, seat_id),
		CONSTRAINT fk_hold_seats_hold FOREIGN KEY (hold_token) REFERENCES seat_holds(hold_token)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id                 BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id            BIGINT UNSIGNED NOT NULL,
		show_id            BIGINT UNSIGNED NOT NULL,
		hold_token         CHAR(36) NOT NULL,
		total_amount_cents INT UNSIGNED NOT NULL,
		payment_status     ENUM('pending','paid','cancelled') NOT NULL DEFAULT 'pending',
		payment_ref        VARCHAR(191) NULL,
		created_at         DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		updated_at         DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
		UNIQUE KEY uq_bookings_hold (hold_token),
		KEY idx_bookings_user (user_id, created_at),
		CONSTRAINT fk_bookings_show FOREIGN KEY (show_id) REFERENCES shows(id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS booking_seats (
		booking_id  BIGINT UNSIGNED NOT NULL,
		show_id     BIGINT UNSIGNED NOT NULL,
		seat_id     BIGINT UNSIGNED NOT NULL,
		price_cents INT UNSIGNED NOT NULL,
		PRIMARY KEY (booking_id, seat_id),
		CONSTRAINT fk_booking_seats_booking FOREIGN KEY (booking_id) REFERENCES bookings(id)
	) ENGINE=InnoDB`,
}

// Migrate creates any missing tables.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}

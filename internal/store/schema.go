package store

// schemaDDL 판매 데이터 스키마의 전체 정의입니다.
//
// 참조 엔티티(artist, country, album, track, tag)는 자연 키에 대한 UNIQUE 제약으로
// 중복 생성을 방어하며, 구매 기록(album_purchase, track_purchase)은 추가 전용입니다.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS artist (
    artist_id  BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    name       TEXT NOT NULL,
    url        TEXT NOT NULL,
    UNIQUE (name, url)
);

CREATE TABLE IF NOT EXISTS country (
    country_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    name       TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS album (
    album_id   BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    title      TEXT NOT NULL,
    artist_id  BIGINT NOT NULL REFERENCES artist (artist_id),
    url        TEXT NOT NULL,
    UNIQUE (title, artist_id, url)
);

CREATE TABLE IF NOT EXISTS track (
    track_id   BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    title      TEXT NOT NULL,
    artist_id  BIGINT NOT NULL REFERENCES artist (artist_id),
    album_id   BIGINT REFERENCES album (album_id),
    url        TEXT NOT NULL,
    UNIQUE (title, artist_id, url)
);

CREATE TABLE IF NOT EXISTS tag (
    tag_id     BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    name       TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS album_tag_assignment (
    album_tag_assignment_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    tag_id     BIGINT NOT NULL REFERENCES tag (tag_id),
    album_id   BIGINT NOT NULL REFERENCES album (album_id),
    UNIQUE (tag_id, album_id)
);

CREATE TABLE IF NOT EXISTS track_tag_assignment (
    track_tag_assignment_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    tag_id     BIGINT NOT NULL REFERENCES tag (tag_id),
    track_id   BIGINT NOT NULL REFERENCES track (track_id),
    UNIQUE (tag_id, track_id)
);

CREATE TABLE IF NOT EXISTS album_purchase (
    album_purchase_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    album_id    BIGINT NOT NULL REFERENCES album (album_id),
    timestamp   TIMESTAMP NOT NULL,
    amount_usd  DOUBLE PRECISION NOT NULL,
    country_id  BIGINT NOT NULL REFERENCES country (country_id)
);

CREATE TABLE IF NOT EXISTS track_purchase (
    track_purchase_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    track_id    BIGINT NOT NULL REFERENCES track (track_id),
    timestamp   TIMESTAMP NOT NULL,
    amount_usd  DOUBLE PRECISION NOT NULL,
    country_id  BIGINT NOT NULL REFERENCES country (country_id)
);

CREATE TABLE IF NOT EXISTS subscriber (
    email      TEXT PRIMARY KEY,
    name       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_album_purchase_country ON album_purchase (country_id);
CREATE INDEX IF NOT EXISTS idx_track_purchase_country ON track_purchase (country_id);
CREATE INDEX IF NOT EXISTS idx_album_purchase_timestamp ON album_purchase (timestamp);
CREATE INDEX IF NOT EXISTS idx_track_purchase_timestamp ON track_purchase (timestamp);
`
